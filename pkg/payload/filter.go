package payload

// EventExecutionTrace is the upstream event carrying internal planner traces.
// It is never relayed.
const EventExecutionTrace = "execution_trace"

// ShouldSkip reports whether a decoded frame must be dropped instead of
// relayed: execution traces, and deltas whose content array is present but
// empty.
func ShouldSkip(event string, p any) bool {
	if event == EventExecutionTrace {
		return true
	}
	content, ok := DeltaContent(p)
	return ok && len(content) == 0
}
