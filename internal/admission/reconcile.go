package admission

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/haeun-dev/registrar-api/internal/models"
)

// RehydrationStore exposes the durable queries the ledger is rebuilt from.
type RehydrationStore interface {
	CountActiveByCourse(ctx context.Context) ([]models.CourseSeatCount, error)
	ListActivePairs(ctx context.Context) ([]models.EnrollmentPair, error)
}

// Reconciler rebuilds the ledger from the enrollment rows. It runs at startup
// (the ledger is a cache of derived truth, never the source of truth for
// persisted data) and on demand after deferred writes have failed permanently.
type Reconciler struct {
	store  RehydrationStore
	ledger *Ledger
	logger *zap.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(store RehydrationStore, ledger *Ledger, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, ledger: ledger, logger: logger}
}

// Resync recounts ACTIVE enrollments per course and replaces the ledger state
// wholesale. In-flight deferred writes that land after the snapshot are
// corrected by the next resync.
func (r *Reconciler) Resync(ctx context.Context) error {
	counts, err := r.store.CountActiveByCourse(ctx)
	if err != nil {
		return fmt.Errorf("count active enrollments: %w", err)
	}
	pairs, err := r.store.ListActivePairs(ctx)
	if err != nil {
		return fmt.Errorf("list active pairs: %w", err)
	}

	r.ledger.Reset(counts, pairs)
	r.logger.Sugar().Infow("ledger resynced", "courses", len(counts), "active_enrollments", len(pairs))
	return nil
}
