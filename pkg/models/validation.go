package models

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue is one violated workflow invariant.
type ValidationIssue struct {
	StepID  string `json:"stepId,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.StepID != "" {
		return fmt.Sprintf("step %s: %s: %s", i.StepID, i.Field, i.Message)
	}

	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationIssues collects every violation found in a workflow.
type ValidationIssues []ValidationIssue

func (v ValidationIssues) Error() string {
	messages := make([]string, len(v))
	for i, issue := range v {
		messages[i] = issue.String()
	}

	return "invalid workflow: " + strings.Join(messages, "; ")
}

// ValidateWorkflow checks the step graph and translation invariants of a workflow and
// returns every violation, or nil.
func ValidateWorkflow(workflow *ConversationWorkflow) error {
	var issues ValidationIssues

	issues = append(issues, validateSteps(workflow)...)
	issues = append(issues, validateGraph(workflow)...)
	issues = append(issues, validateTranslations(workflow)...)

	if len(issues) == 0 {
		return nil
	}

	return issues
}

func validateSteps(workflow *ConversationWorkflow) ValidationIssues {
	var issues ValidationIssues

	if len(workflow.Steps) == 0 {
		return append(issues, ValidationIssue{Field: "steps", Message: "workflow must have at least one step"})
	}

	seen := make(map[string]bool, len(workflow.Steps))

	for i, step := range workflow.Steps {
		if step == nil {
			issues = append(issues, ValidationIssue{Field: fmt.Sprintf("steps[%d]", i), Message: "step cannot be null"})

			continue
		}

		switch {
		case step.ID == "":
			issues = append(issues, ValidationIssue{Field: fmt.Sprintf("steps[%d].id", i), Message: "step id is required"})
		case step.ID == StepEnd:
			issues = append(issues, ValidationIssue{StepID: step.ID, Field: "id", Message: "'end' is reserved for the terminal step"})
		case seen[step.ID]:
			issues = append(issues, ValidationIssue{StepID: step.ID, Field: "id", Message: "duplicate step id"})
		}

		seen[step.ID] = true

		if !step.Type.Valid() {
			issues = append(issues, ValidationIssue{StepID: step.ID, Field: "type", Message: fmt.Sprintf("unknown step type %q", step.Type)})

			continue
		}

		if step.Type == StepTypeAskQuestion {
			if len(step.Branches) == 0 && step.DefaultNextStepID == "" && step.NextStepID == "" {
				issues = append(issues, ValidationIssue{StepID: step.ID, Field: "branches", Message: "ask_question step needs branches or a default successor"})
			}

			for j, branch := range step.Branches {
				if branch.Value == "" {
					issues = append(issues, ValidationIssue{StepID: step.ID, Field: fmt.Sprintf("branches[%d].value", j), Message: "branch value is required"})
				}
			}
		} else {
			if step.NextStepID == "" {
				issues = append(issues, ValidationIssue{StepID: step.ID, Field: "nextStepId", Message: fmt.Sprintf("%s step requires nextStepId", step.Type)})
			}

			if len(step.Branches) > 0 || step.DefaultNextStepID != "" {
				issues = append(issues, ValidationIssue{StepID: step.ID, Field: "branches", Message: "only ask_question steps may branch"})
			}
		}

		if err := ValidateStepConfig(step); err != nil {
			issues = append(issues, ValidationIssue{StepID: step.ID, Field: "config", Message: err.Error()})
		}
	}

	return issues
}

func validateGraph(workflow *ConversationWorkflow) ValidationIssues {
	var issues ValidationIssues

	steps := make(map[string]*WorkflowStep, len(workflow.Steps))
	for _, step := range workflow.Steps {
		if step != nil && step.ID != "" {
			if _, dup := steps[step.ID]; !dup {
				steps[step.ID] = step
			}
		}
	}

	if len(steps) == 0 {
		return nil
	}

	for _, step := range workflow.Steps {
		if step == nil {
			continue
		}

		for _, target := range step.Targets() {
			if target == StepEnd {
				continue
			}

			if _, ok := steps[target]; !ok {
				issues = append(issues, ValidationIssue{StepID: step.ID, Field: "nextStepId", Message: fmt.Sprintf("references unknown step %q", target)})
			}
		}
	}

	entry := workflow.Entry()
	if _, ok := steps[entry]; !ok {
		return append(issues, ValidationIssue{Field: "entryStepId", Message: fmt.Sprintf("entry step %q does not exist", entry)})
	}

	// 0 = unvisited, 1 = on the current path, 2 = done
	state := make(map[string]int, len(steps))
	cycleReported := false

	var visit func(id string)
	visit = func(id string) {
		state[id] = 1

		for _, target := range steps[id].Targets() {
			if _, ok := steps[target]; !ok {
				continue
			}

			switch state[target] {
			case 0:
				visit(target)
			case 1:
				if !cycleReported {
					issues = append(issues, ValidationIssue{StepID: id, Field: "nextStepId", Message: fmt.Sprintf("cycle detected through step %q", target)})
					cycleReported = true
				}
			}
		}

		state[id] = 2
	}

	visit(entry)

	for _, step := range workflow.Steps {
		if step == nil || step.ID == "" {
			continue
		}

		if state[step.ID] == 0 {
			issues = append(issues, ValidationIssue{StepID: step.ID, Field: "id", Message: fmt.Sprintf("step is unreachable from entry step %q", entry)})
		}
	}

	return issues
}

func validateTranslations(workflow *ConversationWorkflow) ValidationIssues {
	var issues ValidationIssues

	if workflow.DefaultLanguage == "" {
		issues = append(issues, ValidationIssue{Field: "defaultLanguage", Message: "default language is required"})
	} else if _, ok := workflow.Translations[workflow.DefaultLanguage]; !ok {
		issues = append(issues, ValidationIssue{Field: "defaultLanguage", Message: fmt.Sprintf("language %q has no translations", workflow.DefaultLanguage)})
	}

	languages := workflow.Languages()
	slices.Sort(languages)

	for _, language := range languages {
		content := workflow.Translations[language]

		for _, step := range workflow.Steps {
			if step == nil || step.ID == "" {
				continue
			}

			stepContent, ok := content[step.ID]
			if !ok {
				issues = append(issues, ValidationIssue{StepID: step.ID, Field: "translations." + language, Message: "missing display content"})

				continue
			}

			if step.Type == StepTypeUpdateTag {
				continue
			}

			if strings.TrimSpace(stepContent.Message) == "" {
				issues = append(issues, ValidationIssue{StepID: step.ID, Field: "translations." + language + ".message", Message: "message is required"})
			}

			if step.Type != StepTypeAskQuestion {
				continue
			}

			for _, branch := range step.Branches {
				if !stepContent.HasOption(branch.Value) {
					issues = append(issues, ValidationIssue{StepID: step.ID, Field: "translations." + language + ".options", Message: fmt.Sprintf("no label for branch value %q", branch.Value)})
				}
			}
		}
	}

	return issues
}
