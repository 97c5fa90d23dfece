package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haeun-dev/registrar-api/internal/models"
)

func TestLedgerReserveAndRelease(t *testing.T) {
	ledger := NewLedger()
	st := ledger.state("CS101")

	st.mu.Lock()
	st.capacity = 2
	require.True(t, st.tryReserve("s1", "e1"))
	require.True(t, st.tryReserve("s2", "e2"))
	require.False(t, st.tryReserve("s3", "e3"), "third seat must be refused at capacity 2")
	st.mu.Unlock()

	assert.Equal(t, 2, ledger.Occupied("CS101"))
	assert.True(t, ledger.HasActive("CS101", "s1"))
	assert.False(t, ledger.HasActive("CS101", "s3"))

	st.mu.Lock()
	enrollmentID, held := st.release("s1")
	st.mu.Unlock()
	require.True(t, held)
	assert.Equal(t, "e1", enrollmentID)
	assert.Equal(t, 1, ledger.Occupied("CS101"))

	st.mu.Lock()
	_, held = st.release("s1")
	st.mu.Unlock()
	assert.False(t, held, "releasing a seat twice must be a no-op")
	assert.Equal(t, 1, ledger.Occupied("CS101"))
}

func TestLedgerCoursesAreIndependent(t *testing.T) {
	ledger := NewLedger()

	a := ledger.state("CS101")
	a.mu.Lock()
	a.capacity = 1
	require.True(t, a.tryReserve("s1", "e1"))
	require.False(t, a.tryReserve("s2", "e2"))
	a.mu.Unlock()

	b := ledger.state("MA201")
	b.mu.Lock()
	b.capacity = 1
	require.True(t, b.tryReserve("s2", "e3"), "a full course must not block another course")
	b.mu.Unlock()

	assert.Equal(t, 1, ledger.Occupied("CS101"))
	assert.Equal(t, 1, ledger.Occupied("MA201"))
}

func TestLedgerFrozenWhenCapacityLoweredBelowOccupancy(t *testing.T) {
	ledger := NewLedger()
	st := ledger.state("CS101")

	st.mu.Lock()
	st.capacity = 3
	require.True(t, st.tryReserve("s1", "e1"))
	require.True(t, st.tryReserve("s2", "e2"))
	require.True(t, st.tryReserve("s3", "e3"))

	// Administrator lowered the cap; existing seats stay, new admissions stop.
	st.capacity = 2
	require.False(t, st.tryReserve("s4", "e4"))
	_, held := st.release("s1")
	require.True(t, held)
	require.False(t, st.tryReserve("s4", "e4"), "still over the lowered cap")
	_, held = st.release("s2")
	require.True(t, held)
	require.True(t, st.tryReserve("s4", "e4"), "attrition below the cap reopens the course")
	st.mu.Unlock()
}

func TestLedgerEvictEnrollment(t *testing.T) {
	ledger := NewLedger()
	st := ledger.state("CS101")
	st.mu.Lock()
	st.capacity = 5
	require.True(t, st.tryReserve("s1", "e1"))
	st.mu.Unlock()

	assert.False(t, ledger.EvictEnrollment("CS101", "s1", "other"), "eviction must match the exact enrollment")
	assert.Equal(t, 1, ledger.Occupied("CS101"))

	assert.True(t, ledger.EvictEnrollment("CS101", "s1", "e1"))
	assert.Equal(t, 0, ledger.Occupied("CS101"))
	assert.False(t, ledger.HasActive("CS101", "s1"))

	assert.False(t, ledger.EvictEnrollment("CS101", "s1", "e1"), "second eviction is a no-op")
}

func TestLedgerReset(t *testing.T) {
	ledger := NewLedger()
	st := ledger.state("STALE")
	st.mu.Lock()
	st.capacity = 1
	st.tryReserve("sx", "ex")
	st.mu.Unlock()

	counts := []models.CourseSeatCount{
		{CourseCode: "CS101", Active: 2},
	}
	pairs := []models.EnrollmentPair{
		{EnrollmentID: "e1", StudentID: "s1", CourseCode: "CS101"},
		{EnrollmentID: "e2", StudentID: "s2", CourseCode: "CS101"},
		{EnrollmentID: "e3", StudentID: "s3", CourseCode: "MA201"},
	}
	ledger.Reset(counts, pairs)

	assert.Equal(t, 2, ledger.Occupied("CS101"))
	assert.True(t, ledger.HasActive("CS101", "s1"))
	assert.True(t, ledger.HasActive("CS101", "s2"))

	// MA201 appeared only in pairs; its occupancy comes from them.
	assert.Equal(t, 1, ledger.Occupied("MA201"))
	assert.True(t, ledger.HasActive("MA201", "s3"))

	assert.Equal(t, 0, ledger.Occupied("STALE"), "reset discards prior state")
	assert.False(t, ledger.HasActive("STALE", "sx"))
}
