// Package ragpipeline implements the 9-stage request-scoped
// retrieval-augmented answering pipeline: Query Analyzer, Hybrid
// Retriever, Sources Pack Builder, Prompt Builder, Generator, Citation
// Validator, Post-Processor, Confidence Scorer, and Observer. Stages are
// chain-of-responsibility plugins registered against an EventManager.
package ragpipeline

import (
	"context"
	"time"

	"github.com/noteqa/ragcore/internal/tracing"
	"github.com/noteqa/ragcore/internal/types"
)

// Pipeline is the assembled 9-stage event chain plus the entrypoint that
// drives a single request through it.
type Pipeline struct {
	em *EventManager
}

// NewPipeline wraps an already-populated EventManager (every stage having
// self-registered via its constructor, e.g. NewQueryAnalyzer).
func NewPipeline(em *EventManager) *Pipeline {
	return &Pipeline{em: em}
}

var stageOrder = []types.EventType{
	types.AnalyzeQuery,
	types.RetrieveHybrid,
	types.BuildSourcesPack,
	types.BuildPrompt,
	types.GenerateAnswer,
	types.ValidateCitations,
	types.PostProcess,
	types.ScoreConfidence,
	types.ObserveRequest,
}

// Run drives one AnswerRequest through every stage in order, honoring the
// two deterministic short-circuit paths (empty corpus, no surviving
// evidence) and converting any stage failure into the core's RAGError
// taxonomy.
func (p *Pipeline) Run(ctx context.Context, req *types.AnswerRequest) (*types.AnswerResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := tracing.ContextWithSpan(ctx, "ragpipeline.run")
	defer span.End()

	rc := &types.RequestContext{
		RequestID: req.RequestID,
		TraceID:   tracing.TraceIDFromContext(ctx),
		TenantID:  req.TenantID,
		StartedAt: time.Now(),
		Request:   req,
	}

	for _, stage := range stageOrder {
		if rc.Terminal {
			break
		}
		if pluginErr := p.em.Trigger(ctx, stage, rc); pluginErr != nil {
			return nil, pluginErr.ToRAGError()
		}
	}

	if rc.Terminal {
		p.observeTerminal(ctx, rc)
		return rc.TerminalResponse, nil
	}

	return buildResponse(rc), nil
}

func (p *Pipeline) observeTerminal(ctx context.Context, rc *types.RequestContext) {
	if rc.Analysis == nil {
		rc.Analysis = &types.QueryAnalysis{Intent: types.IntentSearch}
	}
	_ = p.em.Trigger(ctx, types.ObserveRequest, rc)
}

func validateRequest(req *types.AnswerRequest) error {
	if req == nil {
		return types.NewRAGError(types.ErrorKindInput, "nil request")
	}
	if req.TenantID == 0 {
		return types.NewRAGError(types.ErrorKindInput, "missing tenant identifier")
	}
	if len(req.Question) == 0 {
		return types.NewRAGError(types.ErrorKindInput, "empty question")
	}
	if len(req.Question) > 2000 {
		return types.NewRAGError(types.ErrorKindInput, "question exceeds maximum length")
	}
	return nil
}

func buildResponse(rc *types.RequestContext) *types.AnswerResponse {
	sources := make([]*types.CitedSource, 0, len(rc.SurvivingCitations))
	for _, c := range rc.SurvivingCitations {
		sources = append(sources, &types.CitedSource{
			ID:            c.ID,
			NoteID:        c.NoteID,
			Preview:       c.Snippet,
			FormattedDate: c.CreatedAt.Format("2006-01-02"),
			Relevance:     c.Relevance,
			StartOffset:   c.StartOffset,
			EndOffset:     c.EndOffset,
			Anchor:        c.Anchor,
		})
	}

	return &types.AnswerResponse{
		Answer:  rc.FinalText,
		Sources: sources,
		Metadata: types.AnswerMetadata{
			RequestID:     rc.RequestID,
			ElapsedMillis: time.Since(rc.StartedAt).Milliseconds(),
			Intent:        rc.Analysis.Intent,
			Confidence:    rc.Confidence,
			SourceCount:   len(sources),
			Debug: &types.DebugBlock{
				RetrievalMode:       rc.RetrievalMode,
				CandidateCounts:     rc.CandidateCounts,
				RerankCount:         rc.CandidateCounts.Reranked,
				EnhancedConfidence:  rc.EnhancedConfidence,
				ConfidenceBreakdown: rc.ConfidenceBreakdown,
				CitationQuality: types.QualityFlags{
					CoveragePercent:        rc.CoveragePercent,
					DanglingRemoved:        rc.DanglingRemoved,
					InvalidRemoved:         rc.InvalidRemoved,
					RegenerationAttempted:  rc.RepairAttempted,
					FallbackUsed:           rc.RetrievalMode == types.RetrievalModeFallback,
					HallucinationsDetected: rc.HallucinationsDetected,
					ContractCompliant:      rc.ContractCompliant,
				},
				PostProcessingMods: rc.PostProcessingMods,
				ValidationStats: types.ValidationStats{
					DanglingCount:   rc.DanglingRemoved,
					DroppedCount:    len(rc.DroppedIDs),
					SuspiciousCount: len(rc.SuspiciousIDs),
					CoveragePercent: rc.CoveragePercent,
					RepairAttempted: rc.RepairAttempted,
					RepairAccepted:  rc.RepairAccepted,
				},
			},
		},
	}
}
