package allocation

import (
	"allocation-service/internal/entity"
	"strings"
)

// Evaluation is the allocation projection of an order.
type Evaluation struct {
	State    entity.AllocationState `json:"state"`
	Messages []string               `json:"messages"`
	Results  []Result               `json:"results"`
}

func (ev *Evaluation) add(result Result) {
	if len(result.Shortfalls) == 0 {
		return
	}
	ev.Results = append(ev.Results, result)
	ev.Messages = append(ev.Messages, result.Message())
	if result.Blocking {
		ev.State = entity.AllocationPending
	}
}

// Message joins every recorded message, one per line.
func (ev Evaluation) Message() string {
	return strings.Join(ev.Messages, "\n")
}

// Blocking returns the results that prevent confirmation.
func (ev Evaluation) Blocking() []Result {
	var out []Result
	for _, r := range ev.Results {
		if r.Blocking {
			out = append(out, r)
		}
	}
	return out
}

// Err returns an *AllocationError when the evaluation blocks confirmation.
func (ev Evaluation) Err() error {
	blocking := ev.Blocking()
	if len(blocking) == 0 {
		return nil
	}
	allocErr := &AllocationError{}
	var messages []string
	for _, r := range blocking {
		allocErr.Rules = append(allocErr.Rules, r.RuleName)
		messages = append(messages, r.Message())
	}
	allocErr.Message = strings.Join(messages, "\n")
	return allocErr
}

// AllocationError is returned when unmet targets of a rule without partial
// allocation block an order.
type AllocationError struct {
	Rules   []string
	Message string
}

func (e *AllocationError) Error() string {
	if e.Message == "" {
		return "Allocation rules are not satisfied for this order."
	}
	return e.Message
}
