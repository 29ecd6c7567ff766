package taskgen

import "context"

// TaskDescription is the generated text for a task title.
type TaskDescription struct {
	UserStory          string   `json:"user_story"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

// Generator defines a pluggable task text backend.
type Generator interface {
	GenerateTaskDescription(ctx context.Context, title string) (TaskDescription, error)
	GenerateSubtaskChecklist(ctx context.Context, title, team string) ([]string, error)
}
