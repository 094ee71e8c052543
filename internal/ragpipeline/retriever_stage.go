package ragpipeline

import (
	"context"
	"time"

	"github.com/noteqa/ragcore/internal/retrieval"
	"github.com/noteqa/ragcore/internal/types"
	"github.com/noteqa/ragcore/internal/types/interfaces"
)

const stageHybridRetriever = "HYBRID_RETRIEVER"

// RetrieverStage wraps internal/retrieval.HybridRetriever as a pipeline
// plugin, resolving the request's embedder through the ModelService.
type RetrieverStage struct {
	retriever *retrieval.HybridRetriever
	models    interfaces.ModelService
	chunks    interfaces.ChunkStore
}

// NewRetrieverStage builds and registers the Hybrid Retriever stage.
func NewRetrieverStage(em *EventManager, hr *retrieval.HybridRetriever, models interfaces.ModelService, chunks interfaces.ChunkStore) *RetrieverStage {
	s := &RetrieverStage{retriever: hr, models: models, chunks: chunks}
	em.Register(s)
	return s
}

func (s *RetrieverStage) ActivationEvents() []types.EventType {
	return []types.EventType{types.RetrieveHybrid}
}

func (s *RetrieverStage) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()

	total, err := s.chunks.CountChunks(ctx, rc.TenantID)
	if err != nil {
		return NewPluginError(stageHybridRetriever, types.ErrorKindTransient, "count chunks failed").WithCause(err)
	}
	if total == 0 {
		rc.Terminal = true
		rc.TerminalResponse = emptyCorpusResponse(rc)
		return nil
	}

	embedder, err := s.models.GetEmbeddingModel(ctx, rc.Request.EmbeddingModelID)
	if err != nil {
		embedder = nil // degrade to keyword_only
	}

	finalK := rc.Analysis.AdaptiveK
	if rc.Request.TopK != nil && *rc.Request.TopK > 0 {
		finalK = *rc.Request.TopK
	}

	filters := rc.Request.Filters
	if filters == nil {
		filters = &types.NoteFilters{}
	}
	if filters.After == nil && rc.Analysis.TimeHint == nil {
		horizon := time.Now().AddDate(0, 0, -defaultHorizonDaysFallback)
		filters.After = &horizon
	}

	scored, counts, mode, err := s.retriever.Retrieve(ctx, rc.TenantID, embedder, rc.Analysis, filters, finalK)
	if err != nil {
		return NewPluginError(stageHybridRetriever, types.ErrorKindTransient, "hybrid retrieve failed").WithCause(err)
	}

	if len(scored) == 0 {
		rc.Terminal = true
		rc.TerminalResponse = noEvidenceResponse(rc, nil)
		rc.RecordTiming(stageHybridRetriever, time.Since(start))
		return nil
	}

	rc.ScoredChunks = scored
	rc.CandidateCounts = counts
	rc.RetrievalMode = mode
	if mode == types.RetrievalModeFallback {
		rc.RerankMethod = "none"
	} else {
		rc.RerankMethod = "rrf+cross_encoder"
	}
	rc.RecordTiming(stageHybridRetriever, time.Since(start))
	return next()
}

// defaultHorizonDaysFallback is the look-back horizon applied whenever the
// request has no After bound (including requests with no filters at all)
// and the analyzer found no time hint. It equals the default of
// config.RetrievalConfig.DefaultHorizonDays, which nothing reads, so changing
// that config value does not change this horizon.
const defaultHorizonDaysFallback = 90

func emptyCorpusResponse(rc *types.RequestContext) *types.AnswerResponse {
	return &types.AnswerResponse{
		Answer:  "I don't have any notes to search through. Try creating some notes first!",
		Sources: []*types.CitedSource{},
		Metadata: types.AnswerMetadata{
			RequestID:   rc.RequestID,
			Intent:      rc.Analysis.Intent,
			Confidence:  types.ConfidenceNone,
			SourceCount: 0,
		},
	}
}

func noEvidenceResponse(rc *types.RequestContext, topics []string) *types.AnswerResponse {
	answer := "I couldn't find anything in your notes that answers this."
	if len(topics) > 0 {
		answer += " Your notes do cover: " + topics[0]
		for _, t := range topics[1:] {
			answer += ", " + t
		}
	}
	return &types.AnswerResponse{
		Answer:  answer,
		Sources: []*types.CitedSource{},
		Metadata: types.AnswerMetadata{
			RequestID:   rc.RequestID,
			Intent:      rc.Analysis.Intent,
			Confidence:  types.ConfidenceNone,
			SourceCount: 0,
		},
	}
}
