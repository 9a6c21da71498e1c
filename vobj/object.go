package vobj

import (
	"context"
	"time"

	"github.com/beadwright/orchestrator/channel"
	"github.com/beadwright/orchestrator/ids"
)

// ResponseKind tags the variant carried by a HandlerResponse.
type ResponseKind int

const (
	ResponseSuccess ResponseKind = iota
	ResponseError
	ResponseNone
)

// HandlerResponse is the tagged result of a message handler invocation.
// Exactly one of Payload or (Code, Message) is meaningful, selected by Kind.
type HandlerResponse struct {
	Kind    ResponseKind
	Payload []byte
	Code    string
	Message string
}

// Success builds a HandlerResponse carrying a successful payload.
func Success(payload []byte) HandlerResponse {
	return HandlerResponse{Kind: ResponseSuccess, Payload: payload}
}

// ErrorResponse builds a HandlerResponse carrying an error code and message.
func ErrorResponse(code, message string) HandlerResponse {
	return HandlerResponse{Kind: ResponseError, Code: code, Message: message}
}

// NoResponse builds a HandlerResponse for one-way messages that expect no
// reply.
func NoResponse() HandlerResponse {
	return HandlerResponse{Kind: ResponseNone}
}

// IsSuccess reports whether r carries a Success payload.
func (r HandlerResponse) IsSuccess() bool { return r.Kind == ResponseSuccess }

// IsError reports whether r carries an Error.
func (r HandlerResponse) IsError() bool { return r.Kind == ResponseError }

// Context is passed to a Handler on every lifecycle and message callback.
// State is mutable: handlers read and write it directly.
type Context struct {
	State     *State
	ObjectID  ids.ID
	Timestamp time.Time
}

// Handler implements the message-handling logic for a class of virtual
// objects. OnInit and OnDestroy have no-op defaults via EmbeddableHandler;
// implementations that don't need lifecycle hooks can embed it.
type Handler interface {
	HandleMessage(ctx context.Context, msg channel.Message, hc Context) HandlerResponse
	OnInit(ctx context.Context, hc Context)
	OnDestroy(ctx context.Context, hc Context)
}

// EmbeddableHandler supplies no-op OnInit/OnDestroy so handlers only need
// to implement HandleMessage.
type EmbeddableHandler struct{}

func (EmbeddableHandler) OnInit(context.Context, Context)    {}
func (EmbeddableHandler) OnDestroy(context.Context, Context) {}

// Store persists and loads a virtual object's state snapshot, keyed by
// object id. Implementations may back this with the event log's SQLite
// store or any other durable medium; a nil Store disables persistence.
type Store interface {
	LoadState(ctx context.Context, id ids.ID) (map[string]any, bool, error)
	CommitState(ctx context.Context, id ids.ID, snapshot map[string]any) error
}

// Config bounds a virtual object's persistence behavior.
type Config struct {
	// PersistState enables loading state on init and committing it after
	// a handler leaves it dirty.
	PersistState bool
	// SnapshotInterval forces a commit every N operations even when the
	// handler didn't dirty the state (0 disables this).
	SnapshotInterval uint64
}

// DefaultConfig mirrors the original's defaults: persistence on, snapshot
// every 100 operations.
func DefaultConfig() Config {
	return Config{PersistState: true, SnapshotInterval: 100}
}

// Object is a single live virtual object instance: an id, its state, the
// handler that interprets messages against that state, and bookkeeping
// used to decide when to persist.
type Object struct {
	id             ids.ID
	config         Config
	state          *State
	handler        Handler
	store          Store
	operationCount uint64
	createdAt      time.Time
	lastAccessed   time.Time
}

// New constructs an Object with no backing store; PersistState is ignored
// if set since there's nothing to persist to.
func New(id ids.ID, config Config, handler Handler) *Object {
	now := time.Now()
	return &Object{
		id:           id,
		config:       config,
		state:        NewState(),
		handler:      handler,
		createdAt:    now,
		lastAccessed: now,
	}
}

// NewWithStore constructs an Object backed by store for state persistence.
func NewWithStore(id ids.ID, config Config, handler Handler, store Store) *Object {
	o := New(id, config, handler)
	o.store = store
	return o
}

// ID returns the object's identifier.
func (o *Object) ID() ids.ID { return o.id }

// OperationCount returns the number of messages handled so far.
func (o *Object) OperationCount() uint64 { return o.operationCount }

// CreatedAt returns when the object was constructed.
func (o *Object) CreatedAt() time.Time { return o.createdAt }

// LastAccessed returns when the object last handled a message.
func (o *Object) LastAccessed() time.Time { return o.lastAccessed }

// State exposes the object's state for inspection outside a handler call
// (tests, diagnostics).
func (o *Object) State() *State { return o.state }

// Init loads persisted state (if enabled and a store is configured) and
// runs the handler's OnInit hook.
func (o *Object) Init(ctx context.Context) error {
	if o.config.PersistState && o.store != nil {
		snapshot, found, err := o.store.LoadState(ctx, o.id)
		if err != nil {
			return err
		}
		if found {
			o.state.Restore(snapshot)
		}
	}
	o.handler.OnInit(ctx, Context{State: o.state, ObjectID: o.id, Timestamp: time.Now()})
	return nil
}

// HandleMessage dispatches msg to the handler, then commits state if it
// was left dirty (or the snapshot interval was reached) and persistence is
// enabled.
func (o *Object) HandleMessage(ctx context.Context, msg channel.Message) (HandlerResponse, error) {
	o.lastAccessed = time.Now()
	o.operationCount++

	hctx := Context{State: o.state, ObjectID: o.id, Timestamp: o.lastAccessed}
	response := o.handler.HandleMessage(ctx, msg, hctx)

	shouldSnapshot := o.config.SnapshotInterval > 0 && o.operationCount%o.config.SnapshotInterval == 0
	if o.config.PersistState && o.store != nil && (o.state.IsDirty() || shouldSnapshot) {
		if err := o.store.CommitState(ctx, o.id, o.state.Snapshot()); err != nil {
			return response, err
		}
		o.state.MarkClean()
	}

	return response, nil
}

// Destroy runs the handler's OnDestroy hook.
func (o *Object) Destroy(ctx context.Context) {
	o.handler.OnDestroy(ctx, Context{State: o.state, ObjectID: o.id, Timestamp: time.Now()})
}
