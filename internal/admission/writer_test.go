package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haeun-dev/registrar-api/internal/models"
	"github.com/haeun-dev/registrar-api/pkg/config"
	"github.com/haeun-dev/registrar-api/pkg/jobs"
)

type mockEnrollmentStore struct {
	mu        sync.Mutex
	created   []models.Enrollment
	cancelled []string
	createErr error
	cancelErr error
	block     chan struct{}
}

func (m *mockEnrollmentStore) Create(_ context.Context, enrollment *models.Enrollment) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, *enrollment)
	return nil
}

func (m *mockEnrollmentStore) Cancel(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, id)
	return nil
}

func (m *mockEnrollmentStore) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func (m *mockEnrollmentStore) cancelledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancelled)
}

type countingObserver struct {
	mu            sync.Mutex
	failures      map[string]int
	syncFallbacks int
}

func (o *countingObserver) ObserveDecision(string, Decision) {}
func (o *countingObserver) ObserveQueueDepth(int)            {}

func (o *countingObserver) RecordDeferredWriteFailure(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures == nil {
		o.failures = make(map[string]int)
	}
	o.failures[kind]++
}

func (o *countingObserver) RecordSyncFallback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncFallbacks++
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testAdmissionConfig(policy config.BackpressurePolicy) config.AdmissionConfig {
	return config.AdmissionConfig{
		QueueWorkers: 2,
		QueueBuffer:  8,
		MaxRetries:   2,
		RetryDelay:   5 * time.Millisecond,
		Backpressure: policy,
	}
}

func activeEnrollment(id, studentID, courseCode string) models.Enrollment {
	return models.Enrollment{
		ID:         id,
		StudentID:  studentID,
		CourseCode: courseCode,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now().UTC(),
	}
}

func TestWriterPersistsEnrollAndCancel(t *testing.T) {
	store := &mockEnrollmentStore{}
	ledger := NewLedger()
	writer := NewWriter(store, ledger, testAdmissionConfig(config.BackpressureSync), nil, nil)
	writer.Start(context.Background())
	defer writer.Stop()

	require.NoError(t, writer.SubmitEnroll(context.Background(), activeEnrollment("e1", "s1", "CS101")))
	waitFor(t, func() bool { return store.createdCount() == 1 })
	assert.Equal(t, "e1", store.created[0].ID)

	now := time.Now().UTC()
	cancelled := models.Enrollment{ID: "e1", StudentID: "s1", CourseCode: "CS101", Status: models.EnrollmentStatusCancelled, CancelledAt: &now}
	require.NoError(t, writer.SubmitCancel(context.Background(), cancelled))
	waitFor(t, func() bool { return store.cancelledCount() == 1 })
	assert.Equal(t, []string{"e1"}, store.cancelled)
}

func TestWriterExhaustionReleasesSeat(t *testing.T) {
	store := &mockEnrollmentStore{createErr: errors.New("db down")}
	ledger := NewLedger()
	observer := &countingObserver{}
	writer := NewWriter(store, ledger, testAdmissionConfig(config.BackpressureSync), observer, nil)
	writer.Start(context.Background())
	defer writer.Stop()

	// Seat held in the ledger exactly as the controller leaves it.
	st := ledger.state("CS101")
	st.mu.Lock()
	st.capacity = 5
	require.True(t, st.tryReserve("s1", "e1"))
	st.mu.Unlock()

	require.NoError(t, writer.SubmitEnroll(context.Background(), activeEnrollment("e1", "s1", "CS101")))

	waitFor(t, func() bool { return !ledger.HasActive("CS101", "s1") })
	assert.Equal(t, 0, ledger.Occupied("CS101"), "exhausted insert must compensate the reservation")

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, 1, observer.failures[jobTypeEnroll])
}

func TestWriterExhaustionSkipsReEnrolledStudent(t *testing.T) {
	store := &mockEnrollmentStore{createErr: errors.New("db down")}
	ledger := NewLedger()
	observer := &countingObserver{}
	writer := NewWriter(store, ledger, testAdmissionConfig(config.BackpressureSync), observer, nil)
	writer.Start(context.Background())
	defer writer.Stop()

	// The student dropped and re-enrolled before the old insert gave up.
	st := ledger.state("CS101")
	st.mu.Lock()
	st.capacity = 5
	require.True(t, st.tryReserve("s1", "e2"))
	st.mu.Unlock()

	require.NoError(t, writer.SubmitEnroll(context.Background(), activeEnrollment("e1", "s1", "CS101")))

	waitFor(t, func() bool {
		observer.mu.Lock()
		defer observer.mu.Unlock()
		return observer.failures[jobTypeEnroll] == 1
	})
	assert.True(t, ledger.HasActive("CS101", "s1"), "newer enrollment must keep its seat")
	assert.Equal(t, 1, ledger.Occupied("CS101"))
}

func TestWriterSyncPolicyFallsBackWhenBufferFull(t *testing.T) {
	release := make(chan struct{})
	store := &mockEnrollmentStore{block: release}
	ledger := NewLedger()
	observer := &countingObserver{}

	cfg := config.AdmissionConfig{
		QueueWorkers: 1,
		QueueBuffer:  1,
		MaxRetries:   1,
		RetryDelay:   time.Millisecond,
		Backpressure: config.BackpressureSync,
	}
	writer := NewWriter(store, ledger, cfg, observer, nil)
	writer.Start(context.Background())
	defer writer.Stop()

	// First job occupies the sole worker, which blocks inside Create.
	require.NoError(t, writer.SubmitEnroll(context.Background(), activeEnrollment("e1", "s1", "CS101")))
	waitFor(t, func() bool { return writer.queue.Depth() == 0 })

	// Second job fills the one-slot buffer.
	require.NoError(t, writer.SubmitEnroll(context.Background(), activeEnrollment("e2", "s2", "CS101")))
	require.Equal(t, 1, writer.queue.Depth())

	// Third job finds the buffer full and persists on the caller's
	// goroutine, which also blocks inside Create until released.
	done := make(chan error, 1)
	go func() {
		done <- writer.SubmitEnroll(context.Background(), activeEnrollment("e3", "s3", "CS101"))
	}()

	waitFor(t, func() bool {
		observer.mu.Lock()
		defer observer.mu.Unlock()
		return observer.syncFallbacks == 1
	})

	close(release)
	require.NoError(t, <-done)
	waitFor(t, func() bool { return store.createdCount() == 3 })
}

func TestWriterRejectPolicySurfacesQueueFull(t *testing.T) {
	release := make(chan struct{})
	store := &mockEnrollmentStore{block: release}
	ledger := NewLedger()

	cfg := config.AdmissionConfig{
		QueueWorkers: 1,
		QueueBuffer:  1,
		MaxRetries:   1,
		RetryDelay:   time.Millisecond,
		Backpressure: config.BackpressureReject,
	}
	writer := NewWriter(store, ledger, cfg, nil, nil)
	writer.Start(context.Background())
	defer func() {
		close(release)
		writer.Stop()
	}()

	// Occupy the worker, then fill the one-slot buffer.
	require.NoError(t, writer.SubmitEnroll(context.Background(), activeEnrollment("e1", "s1", "CS101")))
	waitFor(t, func() bool { return writer.queue.Depth() == 0 })
	require.NoError(t, writer.SubmitEnroll(context.Background(), activeEnrollment("e2", "s2", "CS101")))

	err := writer.SubmitEnroll(context.Background(), activeEnrollment("e3", "s3", "CS101"))
	require.ErrorIs(t, err, jobs.ErrQueueFull, "reject policy must refuse once the buffer is full")
}
