// Package resource manages the fixed inventory of GPU units that analysis jobs
// reserve before they run.
package resource

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientResources is returned when fewer matching units are free than requested.
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrInvalidDemand is returned for a non-positive reservation size.
	ErrInvalidDemand = errors.New("invalid resource demand")

	// ErrInvalidInventory is returned when an inventory lists a unit without an id
	// or lists the same id twice.
	ErrInvalidInventory = errors.New("invalid inventory")
)

// Unit describes one schedulable unit as reported by an inventory.
type Unit struct {
	ID         string `yaml:"id" json:"id"`
	Capability string `yaml:"capability" json:"capability"`
}

// UnitState is a read-only view of a unit in the pool.
type UnitState struct {
	ID         string `json:"id"`
	Capability string `json:"capability"`
	Available  bool   `json:"available"`
	Online     bool   `json:"online"`
	HeldBy     string `json:"held_by,omitempty"`
}

type unit struct {
	id         string
	capability string
	holder     uuid.UUID
	online     bool
}

func (u *unit) free() bool { return u.holder == uuid.Nil }

// Pool tracks unit availability. All mutation happens under one mutex, which
// makes reservation all-or-nothing with respect to concurrent callers.
type Pool struct {
	mu    sync.Mutex
	units map[string]*unit
	order []string
}

// NewPool builds a pool from an initial inventory. Every unit starts online and free.
func NewPool(units []Unit) (*Pool, error) {
	p := &Pool{units: make(map[string]*unit, len(units))}
	for _, u := range units {
		if u.ID == "" {
			return nil, fmt.Errorf("%w: unit without id", ErrInvalidInventory)
		}
		if _, exists := p.units[u.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate unit %s", ErrInvalidInventory, u.ID)
		}
		p.units[u.ID] = &unit{id: u.ID, capability: u.Capability, online: true}
		p.order = append(p.order, u.ID)
	}
	sort.Strings(p.order)
	p.publish()
	return p, nil
}

// TryReserve atomically marks count free, online units with the given capability
// as held by token and returns their ids. It never waits: if not enough units
// are free it returns ErrInsufficientResources and changes nothing.
func (p *Pool) TryReserve(token uuid.UUID, count int, capability string) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDemand, count)
	}
	if token == uuid.Nil {
		return nil, fmt.Errorf("%w: nil reservation token", ErrInvalidDemand)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	picked := make([]*unit, 0, count)
	for _, id := range p.order {
		u := p.units[id]
		if u.online && u.free() && u.capability == capability {
			picked = append(picked, u)
			if len(picked) == count {
				break
			}
		}
	}
	if len(picked) < count {
		reservationsTotal.WithLabelValues(capability, "rejected").Inc()
		return nil, fmt.Errorf("%w: need %d %s unit(s), %d free", ErrInsufficientResources, count, capability, len(picked))
	}

	ids := make([]string, len(picked))
	for i, u := range picked {
		u.holder = token
		ids[i] = u.id
	}
	reservationsTotal.WithLabelValues(capability, "granted").Inc()
	p.publish()
	return ids, nil
}

// Release frees the listed units if they are held by token. Units that are
// already free, unknown, or held by a different token are left alone, so
// releasing twice is harmless and a late release cannot free a unit that has
// since been reserved by someone else. It returns the number of units freed.
func (p *Pool) Release(token uuid.UUID, ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	freed := 0
	for _, id := range ids {
		u, ok := p.units[id]
		if !ok || u.free() || u.holder != token {
			continue
		}
		u.holder = uuid.Nil
		freed++
	}
	if freed > 0 {
		p.publish()
	}
	return freed
}

// ReleaseAll frees every unit held by token.
func (p *Pool) ReleaseAll(token uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	freed := 0
	for _, u := range p.units {
		if !u.free() && u.holder == token {
			u.holder = uuid.Nil
			freed++
		}
	}
	if freed > 0 {
		p.publish()
	}
	return freed
}

// HeldBy returns the ids of units currently held by token, sorted.
func (p *Pool) HeldBy(token uuid.UUID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, id := range p.order {
		if u := p.units[id]; !u.free() && u.holder == token {
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshot returns the state of every unit, ordered by id.
func (p *Pool) Snapshot() []UnitState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]UnitState, 0, len(p.order))
	for _, id := range p.order {
		u := p.units[id]
		s := UnitState{
			ID:         u.id,
			Capability: u.capability,
			Available:  u.free(),
			Online:     u.online,
		}
		if !u.free() {
			s.HeldBy = u.holder.String()
		}
		out = append(out, s)
	}
	return out
}

// SyncResult reports what an inventory refresh changed.
type SyncResult struct {
	Added    []string
	Offlined []string
	Restored []string
}

// Changed reports whether the refresh altered the pool.
func (r SyncResult) Changed() bool {
	return len(r.Added)+len(r.Offlined)+len(r.Restored) > 0
}

// Sync reconciles the pool with a fresh inventory listing. New units are added
// free; units missing from the listing go offline and are never handed out
// again, though a unit that is held stays bound to its holder until released.
// Units that reappear come back online. A free unit picks up a changed
// capability; a held one keeps its old capability until released and re-synced.
func (p *Pool) Sync(units []Unit) (SyncResult, error) {
	seen := make(map[string]Unit, len(units))
	for _, u := range units {
		if u.ID == "" {
			return SyncResult{}, fmt.Errorf("%w: unit without id", ErrInvalidInventory)
		}
		if _, dup := seen[u.ID]; dup {
			return SyncResult{}, fmt.Errorf("%w: duplicate unit %s", ErrInvalidInventory, u.ID)
		}
		seen[u.ID] = u
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var res SyncResult
	for id, u := range p.units {
		fresh, listed := seen[id]
		switch {
		case !listed && u.online:
			u.online = false
			res.Offlined = append(res.Offlined, id)
		case listed && !u.online:
			u.online = true
			res.Restored = append(res.Restored, id)
		}
		if listed && u.free() {
			u.capability = fresh.Capability
		}
	}
	for id, u := range seen {
		if _, known := p.units[id]; known {
			continue
		}
		p.units[id] = &unit{id: id, capability: u.Capability, online: true}
		p.order = append(p.order, id)
		res.Added = append(res.Added, id)
	}
	sort.Strings(p.order)
	sort.Strings(res.Added)
	sort.Strings(res.Offlined)
	sort.Strings(res.Restored)
	p.publish()
	return res, nil
}

// publish refreshes the unit gauges. Callers hold p.mu.
func (p *Pool) publish() {
	type counts struct{ online, free, held int }
	byCap := make(map[string]*counts)
	for _, u := range p.units {
		c, ok := byCap[u.capability]
		if !ok {
			c = &counts{}
			byCap[u.capability] = c
		}
		if !u.free() {
			c.held++
		}
		if u.online {
			c.online++
			if u.free() {
				c.free++
			}
		}
	}
	unitsGauge.Reset()
	for capability, c := range byCap {
		unitsGauge.WithLabelValues(capability, "online").Set(float64(c.online))
		unitsGauge.WithLabelValues(capability, "available").Set(float64(c.free))
		unitsGauge.WithLabelValues(capability, "held").Set(float64(c.held))
	}
}
