package batch

// EventType distinguishes the events of a run.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Progress counts the records finished so far.
type Progress struct {
	Processed int      `json:"processed"`
	Total     int      `json:"total"`
	Headers   []string `json:"headers"`
}

// Percent returns Processed as a percentage of Total, capped at 100.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return min(float64(p.Processed)*100/float64(p.Total), 100)
}

// Event is one message of a run. Progress is set for EventProgress,
// Records for EventComplete and Err for EventError.
type Event struct {
	Type     EventType
	Progress Progress
	Records  []Record
	Headers  []string
	Err      error
}
