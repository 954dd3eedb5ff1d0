package scrape

import "time"

// Task is one unit of work: a single product page URL. IDs are assigned
// sequentially from zero in input order and are unique within a run.
type Task struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// Tasks assigns IDs to urls in input order.
func Tasks(urls []string) []Task {
	tasks := make([]Task, len(urls))
	for i, u := range urls {
		tasks[i] = Task{ID: i, URL: u}
	}
	return tasks
}

// Snapshot is a captured representation of a loaded page. Each snapshot is
// owned by exactly one worker and never shared.
type Snapshot struct {
	URL        string
	HTML       string
	StatusCode int
	Title      string
}

// Product is the structured record extracted from one product page.
// Partial records are valid: a missing name, empty attributes, or no images
// do not constitute a failure on their own.
type Product struct {
	URL        string     `json:"url"`
	Name       string     `json:"name"`
	Code       string     `json:"code,omitempty"`
	Attributes Attributes `json:"attributes"`
	Images     []string   `json:"images"`
}

// Outcome is the final result recorded for a task: either a Record or a
// failure Kind with its message, never both.
type Outcome struct {
	Task    Task      `json:"task"`
	Record  *Product  `json:"record,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Success reports whether the outcome carries a record.
func (o Outcome) Success() bool {
	return o.Record != nil && o.Kind == ""
}

// SuccessOutcome builds the outcome for an extracted record.
func SuccessOutcome(task Task, record Product) Outcome {
	return Outcome{Task: task, Record: &record}
}

// FailureOutcome builds the outcome for a failed task.
func FailureOutcome(task Task, kind ErrorKind, message string) Outcome {
	if kind == "" {
		kind = KindUnknown
	}
	return Outcome{Task: task, Kind: kind, Message: message}
}

// RunCounts summarizes a finished run.
type RunCounts struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RunResult is the aggregate of one run. Outcomes are ordered by task ID,
// one per submitted task. The result is handed to the sink exactly once and
// not mutated afterwards.
type RunResult struct {
	RunID    string    `json:"run_id"`
	Category string    `json:"category,omitempty"`
	Outcomes []Outcome `json:"outcomes"`
	Started  time.Time `json:"started_at"`
	Finished time.Time `json:"finished_at"`
	Counts   RunCounts `json:"counts"`
}

// SinkReport describes how far delivery got. Partial success is a normal
// state: the JSON artifact may land on disk while the downstream API rejects
// every record.
type SinkReport struct {
	JSONWritten bool `json:"json_written"`
	APIAccepted bool `json:"api_accepted"`
	Submitted   int  `json:"submitted"`
	Rejected    int  `json:"rejected"`
}
