package bus

import "time"

// EventType is the closed set of message kinds the bus carries, per §4.10.
type EventType string

const (
	EventScanProgress      EventType = "scan_progress"
	EventScanComplete      EventType = "scan_complete"
	EventEncodingProgress  EventType = "encoding_progress"
	EventEncodingComplete  EventType = "encoding_complete"
)

// Event is a single published message. Payload is type-specific data (a
// *ScanProgressPayload, *EncodingProgressPayload, etc.) left as any so the
// bus itself stays oblivious to its producers' shapes.
type Event struct {
	ID        string
	Type      EventType
	At        time.Time
	Payload   any
}

// ScanProgressPayload accompanies EventScanProgress/EventScanComplete.
type ScanProgressPayload struct {
	LibraryID int64
	Added     int
	Skipped   int
	Errored   int
	Done      bool
}

// EncodingProgressPayload accompanies EventEncodingProgress/EventEncodingComplete.
type EncodingProgressPayload struct {
	FileID      int64
	PercentDone float64
	Status      string
	Message     string
}
