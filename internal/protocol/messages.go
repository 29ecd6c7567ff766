package protocol

import "time"

// TaskDescriptionRequest asks for a user story and acceptance criteria.
type TaskDescriptionRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Title     string `json:"title"`
	TraceID   string `json:"trace_id,omitempty"`
}

// TaskDescriptionResponse is the reply to a TaskDescriptionRequest.
type TaskDescriptionResponse struct {
	RequestID          string    `json:"request_id"`
	UserStory          string    `json:"user_story,omitempty"`
	AcceptanceCriteria []string  `json:"acceptance_criteria,omitempty"`
	LatencyMS          int64     `json:"latency_ms"`
	Timestamp          time.Time `json:"timestamp"`
	Error              string    `json:"error,omitempty"`
}

// SubtaskChecklistRequest asks for a subtask checklist for a team.
type SubtaskChecklistRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Title     string `json:"title"`
	Team      string `json:"team"`
	TraceID   string `json:"trace_id,omitempty"`
}

// SubtaskChecklistResponse carries the checklist and the team it was drawn from.
type SubtaskChecklistResponse struct {
	RequestID string    `json:"request_id"`
	Team      string    `json:"team,omitempty"`
	Subtasks  []string  `json:"subtasks,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// GeneratedEvent is broadcast after every successful generation.
type GeneratedEvent struct {
	RequestID string    `json:"request_id"`
	Operation string    `json:"operation"`
	Title     string    `json:"title"`
	Team      string    `json:"team,omitempty"`
	Items     int       `json:"items"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	OperationDescription = "description"
	OperationChecklist   = "checklist"
)

const (
	SubjectDescriptionRequest = "taskgen.description.request"
	SubjectChecklistRequest   = "taskgen.checklist.request"
	SubjectGenerated          = "taskgen.generated"
)
