package admission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haeun-dev/registrar-api/internal/models"
)

type mockCatalog struct {
	mu         sync.Mutex
	capacities map[string]int
	err        error
}

func (m *mockCatalog) GetCapacity(_ context.Context, courseCode string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	capacity, ok := m.capacities[courseCode]
	return capacity, ok, nil
}

func (m *mockCatalog) setCapacity(courseCode string, capacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capacities[courseCode] = capacity
}

type mockDirectory struct {
	students map[string]bool
	err      error
}

func (m *mockDirectory) StudentExists(_ context.Context, studentID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.students[studentID], nil
}

type recordingSink struct {
	mu        sync.Mutex
	enrolls   []models.Enrollment
	cancels   []models.Enrollment
	enrollErr error
	cancelErr error
}

func (m *recordingSink) SubmitEnroll(_ context.Context, enrollment models.Enrollment) error {
	if m.enrollErr != nil {
		return m.enrollErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrolls = append(m.enrolls, enrollment)
	return nil
}

func (m *recordingSink) SubmitCancel(_ context.Context, enrollment models.Enrollment) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, enrollment)
	return nil
}

func newTestController(catalog *mockCatalog, directory *mockDirectory, sink *recordingSink) (*Controller, *Ledger) {
	ledger := NewLedger()
	return NewController(ledger, catalog, directory, sink, nil, nil), ledger
}

func TestEnrollAccepted(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 30}}
	directory := &mockDirectory{students: map[string]bool{"s1": true}}
	sink := &recordingSink{}
	controller, ledger := newTestController(catalog, directory, sink)

	decision, enrollment, err := controller.Enroll(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionAccepted, decision)
	require.NotNil(t, enrollment)
	assert.Equal(t, "s1", enrollment.StudentID)
	assert.Equal(t, "CS101", enrollment.CourseCode)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.NotEmpty(t, enrollment.ID)

	assert.Equal(t, 1, ledger.Occupied("CS101"))
	require.Len(t, sink.enrolls, 1)
	assert.Equal(t, enrollment.ID, sink.enrolls[0].ID)
}

func TestEnrollUnknownStudentOrCourse(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 30}}
	directory := &mockDirectory{students: map[string]bool{"s1": true}}
	sink := &recordingSink{}
	controller, ledger := newTestController(catalog, directory, sink)

	decision, enrollment, err := controller.Enroll(context.Background(), "ghost", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionNotFound, decision)
	assert.Nil(t, enrollment)

	decision, enrollment, err = controller.Enroll(context.Background(), "s1", "XX999")
	require.NoError(t, err)
	assert.Equal(t, DecisionNotFound, decision)
	assert.Nil(t, enrollment)

	assert.Equal(t, 0, ledger.Occupied("CS101"))
	assert.Empty(t, sink.enrolls)
}

func TestEnrollDuplicateIsIdempotent(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 30}}
	directory := &mockDirectory{students: map[string]bool{"s1": true}}
	sink := &recordingSink{}
	controller, ledger := newTestController(catalog, directory, sink)

	decision, _, err := controller.Enroll(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	require.Equal(t, DecisionAccepted, decision)

	for i := 0; i < 3; i++ {
		decision, enrollment, err := controller.Enroll(context.Background(), "s1", "CS101")
		require.NoError(t, err)
		assert.Equal(t, DecisionAlreadyEnrolled, decision)
		assert.Nil(t, enrollment)
	}

	assert.Equal(t, 1, ledger.Occupied("CS101"), "duplicates must not consume seats")
	assert.Len(t, sink.enrolls, 1)
}

func TestEnrollCourseFull(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 1}}
	directory := &mockDirectory{students: map[string]bool{"s1": true, "s2": true}}
	sink := &recordingSink{}
	controller, ledger := newTestController(catalog, directory, sink)

	decision, _, err := controller.Enroll(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	require.Equal(t, DecisionAccepted, decision)

	decision, enrollment, err := controller.Enroll(context.Background(), "s2", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionCourseFull, decision)
	assert.Nil(t, enrollment)
	assert.Equal(t, 1, ledger.Occupied("CS101"))
}

func TestEnrollZeroCapacityCourse(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 0}}
	directory := &mockDirectory{students: map[string]bool{"s1": true}}
	sink := &recordingSink{}
	controller, _ := newTestController(catalog, directory, sink)

	decision, _, err := controller.Enroll(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionCourseFull, decision)
}

func TestEnrollRollsBackWhenSinkRefuses(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 30}}
	directory := &mockDirectory{students: map[string]bool{"s1": true}}
	sink := &recordingSink{enrollErr: errors.New("queue full")}
	controller, ledger := newTestController(catalog, directory, sink)

	decision, enrollment, err := controller.Enroll(context.Background(), "s1", "CS101")
	require.Error(t, err)
	assert.Empty(t, decision)
	assert.Nil(t, enrollment)

	assert.Equal(t, 0, ledger.Occupied("CS101"), "refused event must return the seat")
	assert.False(t, ledger.HasActive("CS101", "s1"))

	// The student can retry once the writer accepts again.
	sink.enrollErr = nil
	decision, _, err = controller.Enroll(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionAccepted, decision)
}

func TestDropRoundTrip(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 1}}
	directory := &mockDirectory{students: map[string]bool{"s1": true, "s2": true}}
	sink := &recordingSink{}
	controller, ledger := newTestController(catalog, directory, sink)

	decision, enrollment, err := controller.Enroll(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	require.Equal(t, DecisionAccepted, decision)

	dropDecision, err := controller.Drop(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionDropped, dropDecision)
	assert.Equal(t, 0, ledger.Occupied("CS101"))

	require.Len(t, sink.cancels, 1)
	assert.Equal(t, enrollment.ID, sink.cancels[0].ID)
	assert.Equal(t, models.EnrollmentStatusCancelled, sink.cancels[0].Status)
	require.NotNil(t, sink.cancels[0].CancelledAt)

	// The freed seat is immediately admittable again.
	decision, _, err = controller.Enroll(context.Background(), "s2", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionAccepted, decision)
}

func TestDropWithoutSeatIsNoOp(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 5}}
	directory := &mockDirectory{students: map[string]bool{"s1": true}}
	sink := &recordingSink{}
	controller, ledger := newTestController(catalog, directory, sink)

	decision, err := controller.Drop(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionNotEnrolled, decision)
	assert.Equal(t, 0, ledger.Occupied("CS101"))
	assert.Empty(t, sink.cancels)

	decision, err = controller.Drop(context.Background(), "ghost", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionNotFound, decision)
}

func TestDropAfterDropIsNotEnrolled(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 5}}
	directory := &mockDirectory{students: map[string]bool{"s1": true}}
	sink := &recordingSink{}
	controller, _ := newTestController(catalog, directory, sink)

	_, _, err := controller.Enroll(context.Background(), "s1", "CS101")
	require.NoError(t, err)

	decision, err := controller.Drop(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	require.Equal(t, DecisionDropped, decision)

	decision, err = controller.Drop(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionNotEnrolled, decision)
	assert.Len(t, sink.cancels, 1)
}

func TestCapacityLoweredFreezesAdmissions(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 3}}
	directory := &mockDirectory{students: map[string]bool{"s1": true, "s2": true, "s3": true, "s4": true, "s5": true}}
	sink := &recordingSink{}
	controller, ledger := newTestController(catalog, directory, sink)

	for _, studentID := range []string{"s1", "s2", "s3"} {
		decision, _, err := controller.Enroll(context.Background(), studentID, "CS101")
		require.NoError(t, err)
		require.Equal(t, DecisionAccepted, decision)
	}

	catalog.setCapacity("CS101", 2)

	decision, _, err := controller.Enroll(context.Background(), "s4", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionCourseFull, decision, "over-cap course admits nobody")
	assert.Equal(t, 3, ledger.Occupied("CS101"), "existing seats are never revoked")

	dropDecision, err := controller.Drop(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	require.Equal(t, DecisionDropped, dropDecision)

	decision, _, err = controller.Enroll(context.Background(), "s4", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionCourseFull, decision, "still at the lowered cap")

	_, err = controller.Drop(context.Background(), "s2", "CS101")
	require.NoError(t, err)

	decision, _, err = controller.Enroll(context.Background(), "s4", "CS101")
	require.NoError(t, err)
	assert.Equal(t, DecisionAccepted, decision, "attrition below the cap reopens admissions")
}

func TestConcurrentEnrollNeverOversellsSeats(t *testing.T) {
	const iterations = 200

	for i := 0; i < iterations; i++ {
		catalog := &mockCatalog{capacities: map[string]int{"CS101": 2}}
		directory := &mockDirectory{students: map[string]bool{"s1": true, "s2": true, "s3": true}}
		sink := &recordingSink{}
		controller, ledger := newTestController(catalog, directory, sink)

		decisions := make([]Decision, 3)
		var wg sync.WaitGroup
		for j, studentID := range []string{"s1", "s2", "s3"} {
			wg.Add(1)
			go func(idx int, id string) {
				defer wg.Done()
				decision, _, err := controller.Enroll(context.Background(), id, "CS101")
				require.NoError(t, err)
				decisions[idx] = decision
			}(j, studentID)
		}
		wg.Wait()

		accepted, full := 0, 0
		for _, d := range decisions {
			switch d {
			case DecisionAccepted:
				accepted++
			case DecisionCourseFull:
				full++
			}
		}
		require.Equal(t, 2, accepted, "exactly capacity admissions must succeed")
		require.Equal(t, 1, full)
		require.Equal(t, 2, ledger.Occupied("CS101"))
		require.Len(t, sink.enrolls, 2)
	}
}

func TestConcurrentDuplicateEnrollAdmitsOnce(t *testing.T) {
	const iterations = 200

	for i := 0; i < iterations; i++ {
		catalog := &mockCatalog{capacities: map[string]int{"CS101": 10}}
		directory := &mockDirectory{students: map[string]bool{"s1": true}}
		sink := &recordingSink{}
		controller, ledger := newTestController(catalog, directory, sink)

		decisions := make([]Decision, 4)
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				decision, _, err := controller.Enroll(context.Background(), "s1", "CS101")
				require.NoError(t, err)
				decisions[idx] = decision
			}(j)
		}
		wg.Wait()

		accepted := 0
		for _, d := range decisions {
			if d == DecisionAccepted {
				accepted++
			}
		}
		require.Equal(t, 1, accepted, "one student gets exactly one seat")
		require.Equal(t, 1, ledger.Occupied("CS101"))
	}
}

func TestConcurrentEnrollAndDropKeepLedgerConsistent(t *testing.T) {
	catalog := &mockCatalog{capacities: map[string]int{"CS101": 5}}
	students := make(map[string]bool)
	ids := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"}
	for _, id := range ids {
		students[id] = true
	}
	directory := &mockDirectory{students: students}
	sink := &recordingSink{}
	controller, ledger := newTestController(catalog, directory, sink)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(studentID string) {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				decision, _, err := controller.Enroll(context.Background(), studentID, "CS101")
				require.NoError(t, err)
				if decision == DecisionAccepted {
					_, err = controller.Drop(context.Background(), studentID, "CS101")
					require.NoError(t, err)
				}
			}
		}(id)
	}
	wg.Wait()

	occupied := ledger.Occupied("CS101")
	assert.GreaterOrEqual(t, occupied, 0)
	assert.LessOrEqual(t, occupied, 5, "occupancy can never exceed capacity")
	assert.Equal(t, 0, occupied, "every accepted admission was dropped")
	assert.Equal(t, len(sink.enrolls), len(sink.cancels))
}
