package models

// StepEnd is the terminal step id. It never resolves to a step.
const StepEnd = "end"

// StepType is the kind of a workflow step.
type StepType string

const (
	StepTypeAskQuestion StepType = "ask_question" // branches on a user-supplied value
	StepTypeSendMessage StepType = "send_message" // emits a message and proceeds
	StepTypeUpdateTag   StepType = "update_tag"   // tags the conversation and proceeds
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepTypeAskQuestion, StepTypeSendMessage, StepTypeUpdateTag:
		return true
	default:
		return false
	}
}

// WorkflowStep is one node of a conversation script.
type WorkflowStep struct {
	ID                string         `json:"id"                          validate:"required"`
	Type              StepType       `json:"type"                        validate:"required,oneof=ask_question send_message update_tag"`
	NextStepID        string         `json:"nextStepId,omitempty"`
	Branches          []Branch       `json:"branches,omitempty"`
	DefaultNextStepID string         `json:"defaultNextStepId,omitempty"`
	Config            map[string]any `json:"config,omitempty"`
}

// Branch maps an exact user-supplied value to a successor step.
type Branch struct {
	Value      string `json:"value"      validate:"required"`
	NextStepID string `json:"nextStepId" validate:"required"`
}

// Targets returns every successor id referenced by the step, in declaration order.
func (s *WorkflowStep) Targets() []string {
	targets := make([]string, 0, len(s.Branches)+2)
	for _, branch := range s.Branches {
		targets = append(targets, branch.NextStepID)
	}

	if s.DefaultNextStepID != "" {
		targets = append(targets, s.DefaultNextStepID)
	}

	if s.NextStepID != "" {
		targets = append(targets, s.NextStepID)
	}

	return targets
}

// Tags returns the tags carried by an update_tag step.
func (s *WorkflowStep) Tags() []string {
	raw, ok := s.Config["tags"]
	if !ok {
		return nil
	}

	switch tags := raw.(type) {
	case []string:
		return tags
	case []any:
		out := make([]string, 0, len(tags))
		for _, tag := range tags {
			if str, ok := tag.(string); ok {
				out = append(out, str)
			}
		}

		return out
	default:
		return nil
	}
}

// ResolveNext returns the successor of step for the given user input. For ask_question
// steps the first branch whose value equals input wins, then defaultNextStepId, then
// nextStepId. The boolean is false when nothing matched.
func ResolveNext(step *WorkflowStep, input string) (string, bool) {
	if step == nil {
		return "", false
	}

	if step.Type == StepTypeAskQuestion {
		for _, branch := range step.Branches {
			if branch.Value == input {
				return branch.NextStepID, true
			}
		}

		if step.DefaultNextStepID != "" {
			return step.DefaultNextStepID, true
		}
	}

	if step.NextStepID != "" {
		return step.NextStepID, true
	}

	return "", false
}
