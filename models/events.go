package models

// Event names used by capability wrappers.
const (
	EventOpen       = "open"
	EventData       = "data"
	EventMessage    = "message"
	EventClose      = "close"
	EventError      = "error"
	EventConnection = "connection"
	EventListening  = "listening"
	EventDiscovered = "discovered"
	EventResponse   = "response"
)

type EventEmitter interface {
	EmitEvent(from string, event any) error
}

type (
	AccessorLoadedEvent struct {
		Name    string   `json:"name"`
		Inputs  []string `json:"inputs"`
		Outputs []string `json:"outputs"`
	}

	AccessorInitializedEvent struct {
		Name string `json:"name"`
	}

	AccessorWrappedUpEvent struct {
		Name string `json:"name"`
	}

	AccessorErrorEvent struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}

	OutputSentEvent struct {
		Name    string `json:"name"`
		Port    string `json:"port"`
		Channel int    `json:"channel"`
		Value   string `json:"value"`
	}
)
