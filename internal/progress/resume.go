package progress

// ResumeFilter drops messages the backend replays to a re-opened channel
// when tracking resumes from a persisted step sequence. Replayed messages
// name steps that are already recorded; the filter lets traffic through
// again once the stream reaches the last recorded step, a terminal
// message or a label it has not seen.
type ResumeFilter struct {
	done       map[string]struct{}
	tail       string
	catchingUp bool
}

// NewResumeFilter builds a filter for the given persisted steps.
func NewResumeFilter(steps []Step) *ResumeFilter {
	f := &ResumeFilter{done: make(map[string]struct{})}
	if len(steps) == 0 {
		return f
	}
	for _, s := range steps[:len(steps)-1] {
		f.done[s.Label] = struct{}{}
	}
	f.tail = steps[len(steps)-1].Label
	f.catchingUp = true
	return f
}

// Accept reports whether msg should be reduced into the step sequence.
func (f *ResumeFilter) Accept(msg Message) bool {
	if f == nil || !f.catchingUp {
		return true
	}
	if msg.IsTerminal() {
		f.catchingUp = false
		return true
	}
	label := msg.Label()
	if label == f.tail {
		f.catchingUp = false
		return true
	}
	if _, replayed := f.done[label]; replayed {
		return false
	}
	f.catchingUp = false
	return true
}
