package core

import "context"

// Kind selects how a dispatch entry is sent.
type Kind int

const (
	// KindQuery entries are relative references resolved against the
	// endpoint and sent as GET requests.
	KindQuery Kind = iota
	// KindPayload entries are pre-serialized JSON bodies sent as POST requests.
	KindPayload
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Entry is one unit of work handed to a worker.
type Entry struct {
	Kind  Kind
	Value string
}

// Dispatch is the fixed list of entries a test cycles through. It is resolved
// once when a test starts; every entry shares the same Kind.
type Dispatch struct {
	kind    Kind
	entries []string
}

// QueryDispatch builds a dispatch list of GET query references.
func QueryDispatch(queries []string) Dispatch {
	return Dispatch{kind: KindQuery, entries: queries}
}

// PayloadDispatch builds a dispatch list of serialized POST bodies.
func PayloadDispatch(bodies []string) Dispatch {
	return Dispatch{kind: KindPayload, entries: bodies}
}

func (d Dispatch) Kind() Kind { return d.kind }
func (d Dispatch) Len() int   { return len(d.entries) }

// Entry returns the entry at index i. i must be in [0, Len()).
func (d Dispatch) Entry(i int) Entry {
	return Entry{Kind: d.kind, Value: d.entries[i]}
}

// Context key for passing the worker ID down to the call executor.
type contextKey string

const workerIDContextKey contextKey = "workerID"

func ContextWithWorkerID(ctx context.Context, workerID int) context.Context {
	return context.WithValue(ctx, workerIDContextKey, workerID)
}

func WorkerIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(workerIDContextKey).(int); ok {
		return id
	}
	return 0
}
