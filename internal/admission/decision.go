package admission

// Decision is the outcome of an enroll or drop request.
type Decision string

const (
	DecisionAccepted        Decision = "ACCEPTED"
	DecisionAlreadyEnrolled Decision = "ALREADY_ENROLLED"
	DecisionCourseFull      Decision = "COURSE_FULL"
	DecisionNotFound        Decision = "NOT_FOUND"
	DecisionDropped         Decision = "DROPPED"
	DecisionNotEnrolled     Decision = "NOT_ENROLLED"
)

// Observer receives admission instrumentation events. Implemented by the
// metrics service; a nil-safe nop implementation is used in tests.
type Observer interface {
	ObserveDecision(op string, decision Decision)
	ObserveQueueDepth(depth int)
	RecordDeferredWriteFailure(kind string)
	RecordSyncFallback()
}

// NopObserver discards all instrumentation events.
type NopObserver struct{}

func (NopObserver) ObserveDecision(string, Decision)  {}
func (NopObserver) ObserveQueueDepth(int)             {}
func (NopObserver) RecordDeferredWriteFailure(string) {}
func (NopObserver) RecordSyncFallback()               {}
