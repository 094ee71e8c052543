package ragpipeline

import (
	"context"
	"testing"

	"github.com/noteqa/ragcore/internal/types"
)

// stagePlugin is a minimal Plugin stub that runs fn then continues the chain.
type stagePlugin struct {
	event types.EventType
	fn    func(rc *types.RequestContext)
}

func (p *stagePlugin) ActivationEvents() []types.EventType { return []types.EventType{p.event} }

func (p *stagePlugin) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	if p.fn != nil {
		p.fn(rc)
	}
	return next()
}

func buildMinimalPipeline() *Pipeline {
	em := NewEventManager()
	em.Register(&stagePlugin{event: types.AnalyzeQuery, fn: func(rc *types.RequestContext) {
		rc.Analysis = &types.QueryAnalysis{Intent: types.IntentQuestion}
	}})
	em.Register(&stagePlugin{event: types.RetrieveHybrid})
	em.Register(&stagePlugin{event: types.BuildSourcesPack, fn: func(rc *types.RequestContext) {
		rc.Pack = &types.SourcesPack{ByID: map[string]*types.Citation{}, Order: []string{}}
	}})
	em.Register(&stagePlugin{event: types.BuildPrompt})
	em.Register(&stagePlugin{event: types.GenerateAnswer, fn: func(rc *types.RequestContext) {
		rc.RawAnswer = "The meeting is on Tuesday [N1]."
	}})
	em.Register(&stagePlugin{event: types.ValidateCitations, fn: func(rc *types.RequestContext) {
		rc.ValidatedText = rc.RawAnswer
		rc.SurvivingCitations = []*types.Citation{{ID: "N1", Snippet: "meeting notes"}}
	}})
	em.Register(&stagePlugin{event: types.PostProcess, fn: func(rc *types.RequestContext) {
		rc.FinalText = rc.ValidatedText
	}})
	em.Register(&stagePlugin{event: types.ScoreConfidence, fn: func(rc *types.RequestContext) {
		rc.Confidence = types.ConfidenceHigh
	}})
	em.Register(&stagePlugin{event: types.ObserveRequest})
	return NewPipeline(em)
}

func TestPipeline_Run_DrivesAllStagesAndBuildsResponse(t *testing.T) {
	p := buildMinimalPipeline()
	req := &types.AnswerRequest{TenantID: 1, Question: "When is the meeting?", RequestID: "req-1"}

	resp, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Answer != "The meeting is on Tuesday [N1]." {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if resp.Metadata.RequestID != "req-1" {
		t.Errorf("expected request id propagated, got %q", resp.Metadata.RequestID)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ID != "N1" {
		t.Fatalf("expected 1 cited source, got %+v", resp.Sources)
	}
	if resp.Metadata.Confidence != types.ConfidenceHigh {
		t.Errorf("expected confidence propagated from stage, got %v", resp.Metadata.Confidence)
	}
}

func TestPipeline_Run_RejectsMissingTenant(t *testing.T) {
	p := buildMinimalPipeline()
	_, err := p.Run(context.Background(), &types.AnswerRequest{Question: "hi"})
	assertInputError(t, err)
}

func TestPipeline_Run_RejectsEmptyQuestion(t *testing.T) {
	p := buildMinimalPipeline()
	_, err := p.Run(context.Background(), &types.AnswerRequest{TenantID: 1, Question: ""})
	assertInputError(t, err)
}

func TestPipeline_Run_RejectsOverlongQuestion(t *testing.T) {
	p := buildMinimalPipeline()
	long := make([]byte, 2001)
	for i := range long {
		long[i] = 'a'
	}
	_, err := p.Run(context.Background(), &types.AnswerRequest{TenantID: 1, Question: string(long)})
	assertInputError(t, err)
}

func TestPipeline_Run_StopsChainAndReturnsErrorOnStageFailure(t *testing.T) {
	em := NewEventManager()
	em.Register(&stagePlugin{event: types.AnalyzeQuery, fn: func(rc *types.RequestContext) {
		rc.Analysis = &types.QueryAnalysis{Intent: types.IntentSearch}
	}})
	em.Register(failingPlugin{event: types.RetrieveHybrid})
	p := NewPipeline(em)

	_, err := p.Run(context.Background(), &types.AnswerRequest{TenantID: 1, Question: "anything"})
	if err == nil {
		t.Fatal("expected an error when a stage fails")
	}
	var ragErr *types.RAGError
	if !asRAGError(err, &ragErr) {
		t.Fatalf("expected a *types.RAGError, got %T", err)
	}
	if ragErr.Kind != types.ErrorKindTransient {
		t.Errorf("expected ErrorKindTransient, got %v", ragErr.Kind)
	}
}

func TestPipeline_Run_TerminalShortCircuitSkipsRemainingStages(t *testing.T) {
	em := NewEventManager()
	ran := map[types.EventType]bool{}
	em.Register(&stagePlugin{event: types.AnalyzeQuery, fn: func(rc *types.RequestContext) {
		ran[types.AnalyzeQuery] = true
		rc.Analysis = &types.QueryAnalysis{Intent: types.IntentSearch}
		rc.Terminal = true
		rc.TerminalResponse = &types.AnswerResponse{Answer: "no notes found"}
	}})
	em.Register(&stagePlugin{event: types.RetrieveHybrid, fn: func(rc *types.RequestContext) {
		ran[types.RetrieveHybrid] = true
	}})
	em.Register(&stagePlugin{event: types.ObserveRequest, fn: func(rc *types.RequestContext) {
		ran[types.ObserveRequest] = true
	}})
	p := NewPipeline(em)

	resp, err := p.Run(context.Background(), &types.AnswerRequest{TenantID: 1, Question: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "no notes found" {
		t.Errorf("expected terminal response surfaced verbatim, got %q", resp.Answer)
	}
	if ran[types.RetrieveHybrid] {
		t.Error("expected stages after the terminal stage to be skipped")
	}
	if !ran[types.ObserveRequest] {
		t.Error("expected the observer to still run on a terminal short-circuit")
	}
}

type failingPlugin struct{ event types.EventType }

func (f failingPlugin) ActivationEvents() []types.EventType { return []types.EventType{f.event} }
func (f failingPlugin) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	return NewPluginError(string(f.event), types.ErrorKindTransient, "boom")
}

func assertInputError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	var ragErr *types.RAGError
	if !asRAGError(err, &ragErr) {
		t.Fatalf("expected a *types.RAGError, got %T", err)
	}
	if ragErr.Kind != types.ErrorKindInput {
		t.Errorf("expected ErrorKindInput, got %v", ragErr.Kind)
	}
}

func asRAGError(err error, target **types.RAGError) bool {
	if re, ok := err.(*types.RAGError); ok {
		*target = re
		return true
	}
	return false
}
