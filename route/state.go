package route

// State tracks one dispatch chain. Each record starts a fresh State and
// every nested dispatch works on a copy one level deeper.
type State struct {
	InvocationID string
	RecordIndex  int
	EventSource  string
	Debug        bool
	Depth        int
	Trail        []string
}

// NewState starts the chain for one record.
func NewState(invocationID string, recordIndex int, eventSource string, debug bool) *State {
	return &State{
		InvocationID: invocationID,
		RecordIndex:  recordIndex,
		EventSource:  eventSource,
		Debug:        debug,
	}
}

// Descend returns a copy of s one level deeper with t appended to the trail.
func (s *State) Descend(t Target) *State {
	next := *s
	next.Depth = s.Depth + 1
	next.Trail = append(append(make([]string, 0, len(s.Trail)+1), s.Trail...), t.String())
	return &next
}
