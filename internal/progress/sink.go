package progress

import (
	"context"
	"time"
)

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so
// crawlers can remain agnostic about how events are buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}

type runIDKey struct{}

// WithRunID returns a context carrying the run identifier.
func WithRunID(ctx context.Context, id [16]byte) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run identifier carried by ctx, or the zero ID.
func RunIDFrom(ctx context.Context) [16]byte {
	id, _ := ctx.Value(runIDKey{}).([16]byte)
	return id
}

// Reporter stamps events with the context run ID and a timestamp before
// handing them to an Emitter. The zero Reporter discards everything.
type Reporter struct {
	Emitter Emitter
	Now     func() time.Time
}

// Report emits evt. Missing run IDs or timestamps are filled in.
func (r Reporter) Report(ctx context.Context, evt Event) {
	if r.Emitter == nil {
		return
	}
	if evt.RunID == [16]byte{} {
		evt.RunID = RunIDFrom(ctx)
	}
	if evt.TS.IsZero() {
		if r.Now != nil {
			evt.TS = r.Now()
		} else {
			evt.TS = time.Now().UTC()
		}
	}
	r.Emitter.Emit(evt)
}
