package ragpipeline

import (
	"context"
	"testing"

	"github.com/noteqa/ragcore/internal/types"
)

const testEvent types.EventType = "test.event"

type recordingPlugin struct {
	name    string
	log     *[]string
	failure *PluginError
}

func (p *recordingPlugin) ActivationEvents() []types.EventType { return []types.EventType{testEvent} }

func (p *recordingPlugin) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	*p.log = append(*p.log, p.name)
	if p.failure != nil {
		return p.failure
	}
	return next()
}

func TestEventManager_RunsPluginsInRegistrationOrder(t *testing.T) {
	em := NewEventManager()
	var log []string
	em.Register(&recordingPlugin{name: "first", log: &log})
	em.Register(&recordingPlugin{name: "second", log: &log})
	em.Register(&recordingPlugin{name: "third", log: &log})

	err := em.Trigger(context.Background(), testEvent, &types.RequestContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(log) != len(want) {
		t.Fatalf("got %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("got %v, want %v", log, want)
		}
	}
}

func TestEventManager_StopsChainOnFirstError(t *testing.T) {
	em := NewEventManager()
	var log []string
	failure := NewPluginError("second", types.ErrorKindInternal, "boom")
	em.Register(&recordingPlugin{name: "first", log: &log})
	em.Register(&recordingPlugin{name: "second", log: &log, failure: failure})
	em.Register(&recordingPlugin{name: "third", log: &log})

	err := em.Trigger(context.Background(), testEvent, &types.RequestContext{})
	if err != failure {
		t.Fatalf("expected the failing plugin's error to propagate, got %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("expected chain to stop after second plugin, ran %v", log)
	}
}

func TestEventManager_TriggerWithNoPluginsIsNoop(t *testing.T) {
	em := NewEventManager()
	if err := em.Trigger(context.Background(), testEvent, &types.RequestContext{}); err != nil {
		t.Fatalf("expected nil error for an event with no plugins, got %v", err)
	}
}

func TestPluginError_ToRAGError_DefaultsToInternal(t *testing.T) {
	pe := &PluginError{Stage: "stage", Message: "bad"}
	rag := pe.ToRAGError()
	if rag.Kind != types.ErrorKindInternal {
		t.Errorf("expected default kind internal, got %v", rag.Kind)
	}
	if rag.Operation != "stage" {
		t.Errorf("expected operation %q, got %q", "stage", rag.Operation)
	}
}
