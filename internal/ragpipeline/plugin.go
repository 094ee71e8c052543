package ragpipeline

import (
	"context"
	"fmt"

	"github.com/noteqa/ragcore/internal/types"
)

// PluginError is the error type every stage plugin returns. A nil
// *PluginError means the stage (and the rest of its chain) succeeded.
type PluginError struct {
	Stage   string
	Kind    types.ErrorKind
	Message string
	Cause   error
}

func (e *PluginError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *PluginError) Unwrap() error { return e.Cause }

// ToRAGError converts a PluginError into the core's external error taxonomy.
func (e *PluginError) ToRAGError() *types.RAGError {
	kind := e.Kind
	if kind == "" {
		kind = types.ErrorKindInternal
	}
	return types.NewRAGErrorWithCause(kind, e.Message, e.Cause).WithOperation(e.Stage)
}

// NewPluginError builds a stage-tagged PluginError of the given kind.
func NewPluginError(stage string, kind types.ErrorKind, message string) *PluginError {
	return &PluginError{Stage: stage, Kind: kind, Message: message}
}

// WithCause attaches an underlying error.
func (e *PluginError) WithCause(cause error) *PluginError {
	e.Cause = cause
	return e
}

// Plugin is one pipeline stage. A Plugin registers for one or more
// EventTypes; when its event fires, OnEvent runs, and must call next() to
// continue the chain to the next plugin registered for the same event.
type Plugin interface {
	ActivationEvents() []types.EventType
	OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError
}

// EventManager is the chain-of-responsibility registry mapping each
// EventType to the ordered list of plugins activated for it.
type EventManager struct {
	plugins map[types.EventType][]Plugin
	order   []types.EventType
}

// NewEventManager builds an empty registry.
func NewEventManager() *EventManager {
	return &EventManager{plugins: make(map[types.EventType][]Plugin)}
}

// Register adds a plugin to every EventType it activates on, preserving
// registration order within each event's chain.
func (m *EventManager) Register(p Plugin) {
	for _, evt := range p.ActivationEvents() {
		if _, ok := m.plugins[evt]; !ok {
			m.order = append(m.order, evt)
		}
		m.plugins[evt] = append(m.plugins[evt], p)
	}
}

// Trigger runs every plugin registered for eventType in registration order,
// each wrapping the next via the next() continuation, terminating the chain
// early the first time a plugin returns a non-nil PluginError.
func (m *EventManager) Trigger(ctx context.Context, eventType types.EventType, rc *types.RequestContext) *PluginError {
	chain := m.plugins[eventType]
	return runChain(ctx, eventType, rc, chain, 0)
}

func runChain(ctx context.Context, eventType types.EventType, rc *types.RequestContext, chain []Plugin, idx int) *PluginError {
	if idx >= len(chain) {
		return nil
	}
	next := func() *PluginError {
		return runChain(ctx, eventType, rc, chain, idx+1)
	}
	return chain[idx].OnEvent(ctx, eventType, rc, next)
}
