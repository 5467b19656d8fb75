package operation

// State tracks a run through its lifecycle. Every run ends in StateDone or
// StateError; the intermediate states appear in the response trace.
type State string

const (
	StateFingerprinting State = "FINGERPRINTING"
	StateCacheCheck     State = "CACHE_CHECK"
	StateResolving      State = "RESOLVING_EXECUTABLE"
	StateExecuting      State = "EXECUTING"
	StateStoring        State = "STORING"
	StateDone           State = "DONE"
	StateError          State = "ERROR"
)
