package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haeun-dev/registrar-api/internal/models"
)

// CourseCatalog resolves course existence and the current capacity. Capacity
// may be edited by an administrator at any time, so it is re-read for every
// admission check rather than held inside the ledger.
type CourseCatalog interface {
	GetCapacity(ctx context.Context, courseCode string) (int, bool, error)
}

// StudentDirectory resolves student existence.
type StudentDirectory interface {
	StudentExists(ctx context.Context, studentID string) (bool, error)
}

// EventSink receives accepted admission events for durable persistence.
type EventSink interface {
	SubmitEnroll(ctx context.Context, enrollment models.Enrollment) error
	SubmitCancel(ctx context.Context, enrollment models.Enrollment) error
}

// Controller is the single admission authority. It serializes enroll and drop
// decisions per course, keeps the ledger and duplicate guard consistent with
// each decision, and hands accepted events to the deferred writer. No I/O
// happens while a course's serialization point is held.
type Controller struct {
	ledger    *Ledger
	catalog   CourseCatalog
	directory StudentDirectory
	sink      EventSink
	observer  Observer
	logger    *zap.Logger
}

// NewController constructs the admission controller.
func NewController(ledger *Ledger, catalog CourseCatalog, directory StudentDirectory, sink EventSink, observer Observer, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Controller{ledger: ledger, catalog: catalog, directory: directory, sink: sink, observer: observer, logger: logger}
}

// Enroll decides a seat request. The existence checks and the capacity read
// run before the course lock is taken; the duplicate check, capacity check and
// ledger update are one atomic step under it. ACCEPTED is returned as soon as
// the in-memory decision commits; durability is deferred to the writer.
func (c *Controller) Enroll(ctx context.Context, studentID, courseCode string) (Decision, *models.Enrollment, error) {
	exists, err := c.directory.StudentExists(ctx, studentID)
	if err != nil {
		return "", nil, err
	}
	if !exists {
		c.observer.ObserveDecision("enroll", DecisionNotFound)
		return DecisionNotFound, nil, nil
	}

	capacity, found, err := c.catalog.GetCapacity(ctx, courseCode)
	if err != nil {
		return "", nil, err
	}
	if !found {
		c.observer.ObserveDecision("enroll", DecisionNotFound)
		return DecisionNotFound, nil, nil
	}

	enrollment := models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseCode: courseCode,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}

	st := c.ledger.state(courseCode)
	st.mu.Lock()
	st.capacity = capacity
	if st.hasActive(studentID) {
		st.mu.Unlock()
		c.observer.ObserveDecision("enroll", DecisionAlreadyEnrolled)
		return DecisionAlreadyEnrolled, nil, nil
	}
	if !st.tryReserve(studentID, enrollment.ID) {
		st.mu.Unlock()
		c.observer.ObserveDecision("enroll", DecisionCourseFull)
		return DecisionCourseFull, nil, nil
	}
	st.mu.Unlock()

	if err := c.sink.SubmitEnroll(ctx, enrollment); err != nil {
		// Reject policy: the event was never queued, so the seat reverts.
		c.ledger.EvictEnrollment(courseCode, studentID, enrollment.ID)
		c.logger.Warn("admission rolled back, writer refused event",
			zap.String("student_id", studentID),
			zap.String("course_code", courseCode),
			zap.Error(err))
		return "", nil, err
	}

	c.observer.ObserveDecision("enroll", DecisionAccepted)
	return DecisionAccepted, &enrollment, nil
}

// Drop releases a student's seat. It is never refused for capacity reasons
// and never waits behind capacity; the only gate is holding a seat at all.
func (c *Controller) Drop(ctx context.Context, studentID, courseCode string) (Decision, error) {
	exists, err := c.directory.StudentExists(ctx, studentID)
	if err != nil {
		return "", err
	}
	if !exists {
		c.observer.ObserveDecision("drop", DecisionNotFound)
		return DecisionNotFound, nil
	}

	_, found, err := c.catalog.GetCapacity(ctx, courseCode)
	if err != nil {
		return "", err
	}
	if !found {
		c.observer.ObserveDecision("drop", DecisionNotFound)
		return DecisionNotFound, nil
	}

	now := time.Now().UTC()

	st := c.ledger.state(courseCode)
	st.mu.Lock()
	enrollmentID, held := st.release(studentID)
	st.mu.Unlock()

	if !held {
		c.observer.ObserveDecision("drop", DecisionNotEnrolled)
		return DecisionNotEnrolled, nil
	}

	cancelled := models.Enrollment{
		ID:          enrollmentID,
		StudentID:   studentID,
		CourseCode:  courseCode,
		Status:      models.EnrollmentStatusCancelled,
		CancelledAt: &now,
	}
	if err := c.sink.SubmitCancel(ctx, cancelled); err != nil {
		// The seat is already free in-memory; resync restores row agreement.
		c.logger.Error("cancellation event refused by writer",
			zap.String("enrollment_id", enrollmentID),
			zap.String("course_code", courseCode),
			zap.Error(err))
		return "", err
	}

	c.observer.ObserveDecision("drop", DecisionDropped)
	return DecisionDropped, nil
}
