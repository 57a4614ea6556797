package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/owl-api/internal/resource"
)

// Syncer accepts a fresh inventory listing. Implemented by *resource.Pool.
type Syncer interface {
	Sync(units []resource.Unit) (resource.SyncResult, error)
}

// Sweeper deletes expired terminal tasks. Implemented by *task.Orchestrator.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

var _ Syncer = (*resource.Pool)(nil)

// InventoryRefresh re-reads inv and applies it to the pool.
func InventoryRefresh(inv resource.Inventory, pool Syncer, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		units, err := inv.Units(ctx)
		if err != nil {
			return fmt.Errorf("list inventory: %w", err)
		}
		res, err := pool.Sync(units)
		if err != nil {
			return fmt.Errorf("sync pool: %w", err)
		}
		if res.Changed() {
			logger.Info("resource inventory changed",
				"added", res.Added,
				"offlined", res.Offlined,
				"restored", res.Restored)
		}
		return nil
	}
}

// RetentionSweep removes terminal tasks past their retention period.
func RetentionSweep(s Sweeper) JobFunc {
	return func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	}
}
