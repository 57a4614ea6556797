package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPurger struct {
	store  Store
	purged []uuid.UUID
}

func (p *stubPurger) Purge(ctx context.Context, id uuid.UUID) (*Record, error) {
	p.purged = append(p.purged, id)
	return p.store.Delete(ctx, id, nil)
}

var (
	alice = domain.Principal{ID: "alice", Role: domain.RoleUser}
	bob   = domain.Principal{ID: "bob", Role: domain.RoleUser}
	admin = domain.Principal{ID: "root", Role: domain.RoleAdmin}
)

func newQuery(t *testing.T) (*QueryService, *MemoryStore, *stubPurger) {
	t.Helper()
	store := NewMemoryStore()
	purger := &stubPurger{store: store}
	return NewQueryService(store, purger), store, purger
}

func TestGetStatusAccess(t *testing.T) {
	t.Parallel()
	q, store, _ := newQuery(t)
	rec := insertAt(t, store, alice.ID, time.Now())

	tests := []struct {
		name    string
		who     domain.Principal
		id      uuid.UUID
		wantErr error
	}{
		{"owner", alice, rec.ID, nil},
		{"admin", admin, rec.ID, nil},
		{"other user", bob, rec.ID, ErrForbidden},
		{"anonymous", domain.Principal{}, rec.ID, domain.ErrUnauthorized},
		{"unknown id", alice, uuid.New(), ErrTaskNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := q.GetStatus(context.Background(), tc.who, tc.id)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
		})
	}
}

func TestGetResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, store, _ := newQuery(t)

	pending := insertAt(t, store, alice.ID, time.Now())
	rec, err := q.GetResult(ctx, alice, pending.ID)
	assert.ErrorIs(t, err, ErrNotReady)
	require.NotNil(t, rec)
	assert.Equal(t, StatePending, rec.State)

	failed := insertAt(t, store, alice.ID, time.Now())
	_, err = store.Update(ctx, failed.ID, func(r *Record) error {
		if err := r.Start(time.Now()); err != nil {
			return err
		}
		return r.Fail(Failure{Code: FailureExecution, Message: msgExecutionFailed}, time.Now())
	})
	require.NoError(t, err)
	_, err = q.GetResult(ctx, alice, failed.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	done := insertAt(t, store, alice.ID, time.Now())
	_, err = store.Update(ctx, done.ID, func(r *Record) error {
		if err := r.Start(time.Now()); err != nil {
			return err
		}
		return r.Complete(json.RawMessage(`{"summary":"ok"}`), time.Now())
	})
	require.NoError(t, err)
	rec, err = q.GetResult(ctx, alice, done.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"ok"}`, string(rec.Result))

	_, err = q.GetResult(ctx, bob, done.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListHistorySnapshotPaging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, store, _ := newQuery(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var inserted []uuid.UUID
	for i := 0; i < 5; i++ {
		inserted = append(inserted, insertAt(t, store, alice.ID, base.Add(time.Duration(i)*time.Minute)).ID)
	}
	insertAt(t, store, bob.ID, base)

	first, err := q.ListHistory(ctx, alice, PageRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, first.Total)
	assert.True(t, first.HasMore)
	assert.Equal(t, []uuid.UUID{inserted[4], inserted[3]}, ids(first.Records))
	require.NotZero(t, first.Snapshot)

	// A task created between page reads must not shift later pages.
	insertAt(t, store, alice.ID, base.Add(time.Hour))

	second, err := q.ListHistory(ctx, alice, PageRequest{Page: 2, PageSize: 2, Snapshot: first.Snapshot})
	require.NoError(t, err)
	assert.Equal(t, 5, second.Total)
	assert.Equal(t, []uuid.UUID{inserted[2], inserted[1]}, ids(second.Records))

	third, err := q.ListHistory(ctx, alice, PageRequest{Page: 3, PageSize: 2, Snapshot: first.Snapshot})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{inserted[0]}, ids(third.Records))
	assert.False(t, third.HasMore)

	fresh, err := q.ListHistory(ctx, alice, PageRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 6, fresh.Total)

	beyond, err := q.ListHistory(ctx, alice, PageRequest{Page: 9, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond.Records)
	assert.False(t, beyond.HasMore)
}

func TestPageValidation(t *testing.T) {
	t.Parallel()
	q, _, _ := newQuery(t)

	tests := []struct {
		name  string
		req   PageRequest
		field string
	}{
		{"page zero", PageRequest{Page: 0, PageSize: 10}, "page"},
		{"size zero", PageRequest{Page: 1, PageSize: 0}, "page_size"},
		{"size too large", PageRequest{Page: 1, PageSize: MaxPageSize + 1}, "page_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := q.ListHistory(context.Background(), alice, tc.req)
			require.ErrorIs(t, err, domain.ErrValidation)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	_, err := q.ListHistory(context.Background(), domain.Principal{}, PageRequest{Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAdminOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, store, purger := newQuery(t)

	a := insertAt(t, store, alice.ID, time.Now())
	b := insertAt(t, store, bob.ID, time.Now())
	_, err := store.Update(ctx, b.ID, func(r *Record) error { return r.Start(time.Now()) })
	require.NoError(t, err)

	req := PageRequest{Page: 1, PageSize: DefaultPageSize}

	_, err = q.ListAll(ctx, alice, AdminFilter{}, req)
	assert.ErrorIs(t, err, ErrForbidden)

	all, err := q.ListAll(ctx, admin, AdminFilter{}, req)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	running, err := q.ListAll(ctx, admin, AdminFilter{States: []State{StateProcessing}}, req)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID}, ids(running.Records))

	owned, err := q.ListAll(ctx, admin, AdminFilter{OwnerID: alice.ID}, req)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID}, ids(owned.Records))

	_, err = q.Delete(ctx, alice, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, purger.purged)

	deleted, err := q.Delete(ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)
	_, err = q.GetStatus(ctx, alice, a.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
