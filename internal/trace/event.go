package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat // periodic liveness signal
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // CLI command
	ScopeStage                   // extract, resolve, lower, generate, ...
	ScopeCrate                   // per crate work inside a stage
	ScopeItem                    // per item work
)

func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopeStage:
		return "stage"
	case ScopeCrate:
		return "crate"
	case ScopeItem:
		return "item"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time
	Seq      uint64 // assigned by the sink that stores the event
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for roots
	GID      uint64
	Name     string // "resolve", "crate:app", "collaborator:rustfmt"
	Detail   string
	Extra    map[string]string
}
