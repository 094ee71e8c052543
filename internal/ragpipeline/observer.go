package ragpipeline

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/noteqa/ragcore/internal/common"
	"github.com/noteqa/ragcore/internal/types"
)

const stageObserver = "OBSERVER"

// ObservabilitySink accepts one structured record per request. The core
// is agnostic to where it is written.
type ObservabilitySink interface {
	Record(ctx context.Context, log *types.RetrievalLog)
}

// LoggingSink is the default sink: it emits the structured [PIPELINE]
// logging convention (internal/common.PipelineInfo).
type LoggingSink struct{}

// Record logs the retrieval log at info level, or warn level if any of
// the configured warning conditions hold.
func (LoggingSink) Record(ctx context.Context, log *types.RetrievalLog) {
	fields := map[string]interface{}{
		"requestId":     log.RequestID,
		"tenantId":      log.TenantID,
		"retrievalMode": string(log.RetrievalMode),
		"intent":        string(log.Intent),
		"answerLength":  log.AnswerLength,
	}
	if isWarningWorthy(log) {
		common.PipelineWarn(ctx, stageObserver, "request_complete", fields)
		return
	}
	common.PipelineInfo(ctx, stageObserver, "request_complete", fields)
}

func isWarningWorthy(log *types.RetrievalLog) bool {
	if log.Quality.CoveragePercent < 0.6 && log.CandidateCounts.Merged >= 3 {
		return true
	}
	if log.ScoreDistribution.TopTwoGap > 0.3 {
		return true
	}
	return len(log.Citations) < log.CandidateCounts.Final
}

// Observer emits the structured per-request trace: the final pipeline
// stage, run for every request that completes, including terminal/
// short-circuit paths. A request whose earlier stage returns an error ends
// before the Observer runs.
type Observer struct {
	sink ObservabilitySink
}

// NewObserver builds and registers the stage.
func NewObserver(em *EventManager, sink ObservabilitySink) *Observer {
	if sink == nil {
		sink = LoggingSink{}
	}
	o := &Observer{sink: sink}
	em.Register(o)
	return o
}

func (o *Observer) ActivationEvents() []types.EventType {
	return []types.EventType{types.ObserveRequest}
}

func (o *Observer) OnEvent(ctx context.Context, eventType types.EventType, rc *types.RequestContext, next func() *PluginError) *PluginError {
	start := time.Now()

	log := BuildRetrievalLog(rc)
	o.sink.Record(ctx, log)

	rc.RecordTiming(stageObserver, time.Since(start))
	return next()
}

// BuildRetrievalLog assembles the append-only observability record from a
// finished RequestContext.
func BuildRetrievalLog(rc *types.RequestContext) *types.RetrievalLog {
	query := rc.Request.Question
	if len(query) > 500 {
		query = query[:500]
	}

	citations := make([]types.CitationLogEntry, 0, len(rc.SurvivingCitations))
	for _, c := range rc.SurvivingCitations {
		prefix := c.NoteID
		if len(prefix) > 8 {
			prefix = prefix[:8]
		}
		citations = append(citations, types.CitationLogEntry{ID: c.ID, NotePrefix: prefix, Score: c.Relevance})
	}

	return &types.RetrievalLog{
		RequestID:         rc.RequestID,
		TraceID:           rc.TraceID,
		TenantID:          tenantIDString(rc.TenantID),
		Query:             query,
		QueryLength:       len(rc.Request.Question),
		Intent:            safeIntent(rc),
		RetrievalMode:     rc.RetrievalMode,
		CandidateCounts:   rc.CandidateCounts,
		ScoreDistribution: scoreDistribution(rc.ScoredChunks),
		RerankMethod:      rc.RerankMethod,
		Citations:         citations,
		Timings:           rc.Timings,
		Quality: types.QualityFlags{
			CoveragePercent:        rc.CoveragePercent,
			DanglingRemoved:        rc.DanglingRemoved,
			InvalidRemoved:         rc.InvalidRemoved,
			RegenerationAttempted:  rc.RepairAttempted,
			FallbackUsed:           rc.RetrievalMode == types.RetrievalModeFallback,
			HallucinationsDetected: rc.HallucinationsDetected,
			ContractCompliant:      rc.ContractCompliant,
		},
		AnswerLength: len(rc.FinalText),
		Timestamp:    rc.StartedAt,
	}
}

func safeIntent(rc *types.RequestContext) types.Intent {
	if rc.Analysis == nil {
		return types.IntentSearch
	}
	return rc.Analysis.Intent
}

func tenantIDString(id uint64) string {
	return formatUint(id)
}

func formatUint(id uint64) string {
	if id == 0 {
		return "0"
	}
	digits := []byte{}
	for id > 0 {
		digits = append([]byte{byte('0' + id%10)}, digits...)
		id /= 10
	}
	return string(digits)
}

func scoreDistribution(chunks []*types.ScoredChunk) types.ScoreDistribution {
	if len(chunks) == 0 {
		return types.ScoreDistribution{}
	}
	scores := make([]float64, len(chunks))
	notes := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		scores[i] = c.Score
		notes[c.Chunk.NoteID] = struct{}{}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	top := sorted[len(sorted)-1]
	bottom := sorted[0]
	median := sorted[len(sorted)/2]

	gap := 0.0
	if len(sorted) >= 2 {
		gap = sorted[len(sorted)-1] - sorted[len(sorted)-2]
	}

	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))
	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	return types.ScoreDistribution{
		Top:         top,
		Median:      median,
		Min:         bottom,
		TopTwoGap:   gap,
		UniqueNotes: len(notes),
		StdDev:      math.Sqrt(variance),
	}
}
