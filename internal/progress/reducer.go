package progress

// StepState is the lifecycle state of a single step.
type StepState string

const (
	StepPending StepState = "pending"
	StepRunning StepState = "running"
	StepDone    StepState = "done"
	StepFailed  StepState = "failed"
)

// Step is one labelled phase of a long-running operation.
type Step struct {
	Label    string    `json:"label" yaml:"label"`
	State    StepState `json:"state" yaml:"state"`
	Progress *float64  `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// Failed reports whether the sequence ended in a failed step.
func Failed(steps []Step) bool {
	return len(steps) > 0 && steps[len(steps)-1].State == StepFailed
}

// Reduce folds msg into steps and returns the new sequence.
// The input slice is never modified.
func Reduce(steps []Step, msg Message) []Step {
	if Failed(steps) {
		return Clone(steps)
	}

	next := Clone(steps)
	label := msg.Label()

	switch {
	case msg.IsFailure():
		if len(next) == 0 {
			if label == "" {
				label = ConnectionErrorLabel
			}
			return append(next, Step{Label: label, State: StepFailed})
		}
		next[len(next)-1].State = StepFailed
		return next

	case msg.IsSuccess():
		if len(next) == 0 {
			return append(next, Step{Label: label, State: StepDone})
		}
		last := &next[len(next)-1]
		last.State = StepDone
		last.Progress = nil
		return next
	}

	if len(next) > 0 && next[len(next)-1].Label == label {
		next[len(next)-1].Progress = percent(msg.Progress)
		return next
	}

	if len(next) > 0 {
		prev := &next[len(next)-1]
		if prev.State == StepRunning {
			prev.State = StepDone
			prev.Progress = nil
		}
	}
	return append(next, Step{Label: label, State: StepRunning, Progress: percent(msg.Progress)})
}

// Clone returns a deep copy of steps.
func Clone(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.Progress != nil {
			p := *s.Progress
			out[i].Progress = &p
		}
	}
	return out
}

func percent(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}
