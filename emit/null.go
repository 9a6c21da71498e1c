package emit

import "context"

// NullEmitter discards every event. Useful for disabling observability
// without changing call sites, or as a safe default Emitter.
type NullEmitter struct{}

func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

func (n *NullEmitter) Emit(Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }

var _ Emitter = (*NullEmitter)(nil)
