package admission

import (
	"sync"

	"github.com/haeun-dev/registrar-api/internal/models"
)

// courseState is the per-course admission record: the latest capacity read,
// the occupied-seat count, and the set of students currently holding a seat
// (the duplicate guard). It is guarded by its own mutex — the serialization
// point for that course — so admissions for unrelated courses never contend.
type courseState struct {
	mu       sync.Mutex
	capacity int
	occupied int
	active   map[string]string // studentID -> enrollmentID
}

// hasActive reports whether the student already holds a seat. Caller must
// hold the state mutex.
func (s *courseState) hasActive(studentID string) bool {
	_, ok := s.active[studentID]
	return ok
}

// tryReserve admits the student if a seat is free. Caller must hold the
// state mutex. When capacity has been lowered below the occupied count the
// course stays frozen until attrition frees seats.
func (s *courseState) tryReserve(studentID, enrollmentID string) bool {
	if s.occupied >= s.capacity {
		return false
	}
	s.occupied++
	s.active[studentID] = enrollmentID
	return true
}

// release frees the student's seat, returning the enrollment that held it.
// Caller must hold the state mutex.
func (s *courseState) release(studentID string) (string, bool) {
	enrollmentID, ok := s.active[studentID]
	if !ok {
		return "", false
	}
	delete(s.active, studentID)
	if s.occupied > 0 {
		s.occupied--
	}
	return enrollmentID, true
}

// Ledger is the in-memory source of truth for admission decisions: a keyed
// table of per-course states. It is derived from the enrollment rows and is
// rebuilt from them at startup and on reconciliation.
type Ledger struct {
	mu      sync.RWMutex
	courses map[string]*courseState
}

// NewLedger builds an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{courses: make(map[string]*courseState)}
}

// state returns the course's entry, creating it on first use. Only the map
// lookup is guarded here; admission work happens under the entry's own mutex.
func (l *Ledger) state(courseCode string) *courseState {
	l.mu.RLock()
	st, ok := l.courses[courseCode]
	l.mu.RUnlock()
	if ok {
		return st
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok = l.courses[courseCode]; ok {
		return st
	}
	st = &courseState{active: make(map[string]string)}
	l.courses[courseCode] = st
	return st
}

// Occupied reports the current occupied-seat count for a course.
func (l *Ledger) Occupied(courseCode string) int {
	st := l.state(courseCode)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.occupied
}

// HasActive reports whether the student currently holds a seat in the course.
func (l *Ledger) HasActive(courseCode, studentID string) bool {
	st := l.state(courseCode)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.hasActive(studentID)
}

// EvictEnrollment releases the seat held by exactly the given enrollment, the
// compensating action when its deferred insert could not be persisted. It is
// a no-op when the student has already dropped or re-enrolled since.
func (l *Ledger) EvictEnrollment(courseCode, studentID, enrollmentID string) bool {
	st := l.state(courseCode)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active[studentID] != enrollmentID {
		return false
	}
	delete(st.active, studentID)
	if st.occupied > 0 {
		st.occupied--
	}
	return true
}

// Reset replaces all ledger state with the given durable counts and active
// pairs. Used for startup rehydration and reconciliation resync.
func (l *Ledger) Reset(counts []models.CourseSeatCount, pairs []models.EnrollmentPair) {
	courses := make(map[string]*courseState, len(counts))
	counted := make(map[string]bool, len(counts))
	for _, c := range counts {
		courses[c.CourseCode] = &courseState{
			occupied: c.Active,
			active:   make(map[string]string),
		}
		counted[c.CourseCode] = true
	}
	for _, p := range pairs {
		st, ok := courses[p.CourseCode]
		if !ok {
			st = &courseState{active: make(map[string]string)}
			courses[p.CourseCode] = st
		}
		if _, held := st.active[p.StudentID]; !held && !counted[p.CourseCode] {
			st.occupied++
		}
		st.active[p.StudentID] = p.EnrollmentID
	}

	l.mu.Lock()
	l.courses = courses
	l.mu.Unlock()
}
