package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/haeun-dev/registrar-api/internal/models"
	"github.com/haeun-dev/registrar-api/pkg/config"
	"github.com/haeun-dev/registrar-api/pkg/jobs"
)

const (
	jobTypeEnroll = "enrollment.create"
	jobTypeCancel = "enrollment.cancel"
)

// EnrollmentStore persists admission events durably.
type EnrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Cancel(ctx context.Context, id string, cancelledAt time.Time) error
}

// Writer persists accepted admission events off the decision path using the
// bounded jobs queue. The queue retries with delay; once retries are
// exhausted the writer compensates the ledger so a seat acknowledged to the
// caller is never leaked by a write that will never land.
type Writer struct {
	queue    *jobs.Queue
	store    EnrollmentStore
	ledger   *Ledger
	policy   config.BackpressurePolicy
	observer Observer
	logger   *zap.Logger
}

// NewWriter wires the deferred-write queue for admission events.
func NewWriter(store EnrollmentStore, ledger *Ledger, cfg config.AdmissionConfig, observer Observer, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	w := &Writer{
		store:    store,
		ledger:   ledger,
		policy:   cfg.Backpressure,
		observer: observer,
		logger:   logger,
	}
	w.queue = jobs.NewQueue("admission-writes", w.handle, jobs.QueueConfig{
		Workers:     cfg.QueueWorkers,
		BufferSize:  cfg.QueueBuffer,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		OnExhausted: w.exhausted,
		Logger:      logger,
	})
	return w
}

// Start launches the worker pool.
func (w *Writer) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop drains the workers.
func (w *Writer) Stop() {
	w.queue.Stop()
}

// SubmitEnroll hands an accepted enrollment to the queue under the configured
// backpressure policy.
func (w *Writer) SubmitEnroll(ctx context.Context, enrollment models.Enrollment) error {
	return w.submit(ctx, jobs.Job{ID: enrollment.ID, Type: jobTypeEnroll, Payload: enrollment})
}

// SubmitCancel hands a cancellation to the queue under the configured policy.
func (w *Writer) SubmitCancel(ctx context.Context, enrollment models.Enrollment) error {
	return w.submit(ctx, jobs.Job{ID: enrollment.ID, Type: jobTypeCancel, Payload: enrollment})
}

func (w *Writer) submit(ctx context.Context, job jobs.Job) error {
	defer w.observer.ObserveQueueDepth(w.queue.Depth())

	switch w.policy {
	case config.BackpressureBlock:
		return w.queue.Enqueue(job)
	case config.BackpressureReject:
		return w.queue.TryEnqueue(job)
	default: // sync
		err := w.queue.TryEnqueue(job)
		if errors.Is(err, jobs.ErrQueueFull) {
			w.observer.RecordSyncFallback()
			w.logger.Warn("deferred-write buffer full, persisting synchronously",
				zap.String("job_id", job.ID), zap.String("type", job.Type))
			return w.persist(ctx, job)
		}
		return err
	}
}

func (w *Writer) handle(ctx context.Context, job jobs.Job) error {
	return w.persist(ctx, job)
}

func (w *Writer) persist(ctx context.Context, job jobs.Job) error {
	enrollment, ok := job.Payload.(models.Enrollment)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}

	switch job.Type {
	case jobTypeEnroll:
		return w.store.Create(ctx, &enrollment)
	case jobTypeCancel:
		at := time.Now().UTC()
		if enrollment.CancelledAt != nil {
			at = *enrollment.CancelledAt
		}
		return w.store.Cancel(ctx, enrollment.ID, at)
	default:
		return fmt.Errorf("unknown admission job type %q", job.Type)
	}
}

// exhausted runs after the final retry failed. For an enrollment insert the
// seat was never durably recorded, so the reservation is released; the caller
// already saw ACCEPTED, which is why the failure is surfaced loudly here
// rather than as a request error.
func (w *Writer) exhausted(_ context.Context, job jobs.Job, err error) {
	w.observer.RecordDeferredWriteFailure(job.Type)

	enrollment, ok := job.Payload.(models.Enrollment)
	if !ok {
		w.logger.Error("unrecoverable admission job with bad payload",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	switch job.Type {
	case jobTypeEnroll:
		released := w.ledger.EvictEnrollment(enrollment.CourseCode, enrollment.StudentID, enrollment.ID)
		w.logger.Error("enrollment persist failed permanently, seat released",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("student_id", enrollment.StudentID),
			zap.String("course_code", enrollment.CourseCode),
			zap.Bool("seat_released", released),
			zap.Error(err))
	case jobTypeCancel:
		// The durable row is still ACTIVE while the ledger freed the seat;
		// a resync recounts the rows and restores agreement.
		w.logger.Error("cancellation persist failed permanently, resync required",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("course_code", enrollment.CourseCode),
			zap.Error(err))
	}
}
