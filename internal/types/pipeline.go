package types

import "time"

// Intent is the closed set of query intents the Query Analyzer classifies
// into.
type Intent string

const (
	IntentSummarize  Intent = "summarize"
	IntentList       Intent = "list"
	IntentDecision   Intent = "decision"
	IntentActionItem Intent = "action_item"
	IntentSearch     Intent = "search"
	IntentQuestion   Intent = "question"
)

// RetrievalMode labels which sources contributed to the final ranking.
type RetrievalMode string

const (
	RetrievalModeVector      RetrievalMode = "vector"
	RetrievalModeHybrid      RetrievalMode = "hybrid"
	RetrievalModeKeywordOnly RetrievalMode = "keyword_only"
	RetrievalModeFallback    RetrievalMode = "fallback"
)

// ConfidenceLevel is the external four-level confidence reported to
// callers.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceNone   ConfidenceLevel = "none"
)

// EnhancedConfidenceLevel is the internal five-level confidence the scorer
// computes before collapsing it to the coarser ConfidenceLevel; the
// response's debug block reports it beside the coarse level.
type EnhancedConfidenceLevel string

const (
	EnhancedConfidenceVeryHigh EnhancedConfidenceLevel = "very_high"
	EnhancedConfidenceHigh     EnhancedConfidenceLevel = "high"
	EnhancedConfidenceMedium   EnhancedConfidenceLevel = "medium"
	EnhancedConfidenceLow      EnhancedConfidenceLevel = "low"
	EnhancedConfidenceVeryLow  EnhancedConfidenceLevel = "very_low"
)

// EventType identifies a pipeline stage for the plugin event chain
// (ragpipeline.EventManager).
type EventType string

const (
	AnalyzeQuery      EventType = "ANALYZE_QUERY"
	RetrieveHybrid    EventType = "RETRIEVE_HYBRID"
	BuildSourcesPack  EventType = "BUILD_SOURCES_PACK"
	BuildPrompt       EventType = "BUILD_PROMPT"
	GenerateAnswer    EventType = "GENERATE_ANSWER"
	ValidateCitations EventType = "VALIDATE_CITATIONS"
	PostProcess       EventType = "POST_PROCESS"
	ScoreConfidence   EventType = "SCORE_CONFIDENCE"
	ObserveRequest    EventType = "OBSERVE_REQUEST"
)

// ResponseFormat is the optional per-request formatting directive.
type ResponseFormat string

const (
	FormatDefault  ResponseFormat = "default"
	FormatConcise  ResponseFormat = "concise"
	FormatDetailed ResponseFormat = "detailed"
	FormatBullet   ResponseFormat = "bullet"
	FormatStructured ResponseFormat = "structured"
)

// Chunk is a unit of indexed note text.
type Chunk struct {
	ID         string    `json:"id"          gorm:"primaryKey;type:varchar(64)"`
	NoteID     string    `json:"note_id"     gorm:"index;type:varchar(64)"`
	TenantID   uint64    `json:"tenant_id"   gorm:"index"`
	Text       string    `json:"text"        gorm:"type:text"`
	Ordinal    int       `json:"ordinal"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index"`
	Embedding  []float32 `json:"embedding,omitempty"   gorm:"-"`
	Terms      []string  `json:"terms,omitempty"       gorm:"-"`
	PrevText   string    `json:"prev_text,omitempty"   gorm:"-"`
	NextText   string    `json:"next_text,omitempty"   gorm:"-"`
	StartOffset *int     `json:"start_offset,omitempty" gorm:"-"`
	EndOffset   *int     `json:"end_offset,omitempty"   gorm:"-"`
	Anchor      string   `json:"anchor,omitempty"       gorm:"-"`
	Tags        []string `json:"tags,omitempty"         gorm:"-"`
}

// Retrievable reports whether the chunk carries enough precomputed data to
// ever be surfaced by a retrieval source.
func (c *Chunk) Retrievable() bool {
	return len(c.Embedding) > 0 || len(c.Terms) > 0
}

// ScoredChunk is a Chunk plus its fused relevance score and the component
// scores that produced it, valid only for the lifetime of one request.
type ScoredChunk struct {
	Chunk          *Chunk
	Score          float64
	VectorScore    float64
	LexicalScore   float64
	RecencyScore   float64
	CrossEncoder   float64
	HasCrossEncoder bool
	SourceCount    int
}

// GetScore implements common.ScoreComparable so ScoredChunk slices can use
// the shared deduplicate-and-sort-by-score helper.
func (s *ScoredChunk) GetScore() float64 { return s.Score }

// TimeHint is an optional, parsed relative-time constraint extracted by the
// Query Analyzer.
type TimeHint struct {
	DaysBack int        `json:"days_back,omitempty"`
	After    *time.Time `json:"after,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
}

// QueryAnalysis is the Query Analyzer's output.
type QueryAnalysis struct {
	Normalized string
	Keywords   []string
	Intent     Intent
	TimeHint   *TimeHint
	Entities   []string
	AdaptiveK  int
	RerankWidth int
}

// NoteFilters are the optional retrieval constraints a caller may attach.
type NoteFilters struct {
	IncludeNoteIDs []string
	ExcludeNoteIDs []string
	Tags           []string
	After          *time.Time
	Before         *time.Time
	MinRelevance   float64
}

// Citation is one entry of a Sources Pack.
type Citation struct {
	ID          string    `json:"id"` // "N" + positive integer, e.g. "N1"
	NoteID      string    `json:"note_id"`
	ChunkID     string    `json:"chunk_id"`
	CreatedAt   time.Time `json:"created_at"`
	Snippet     string    `json:"snippet"`
	Relevance   float64   `json:"relevance"`
	StartOffset *int      `json:"start_offset,omitempty"`
	EndOffset   *int      `json:"end_offset,omitempty"`
	Anchor      string    `json:"anchor,omitempty"`
}

// SourcesPack is the immutable ordered set of Scored Chunks plus the
// identifier map fixed for the rest of the request.
type SourcesPack struct {
	Ordered []*ScoredChunk
	ByID    map[string]*Citation
	Order   []string // citation IDs in list order, N1..Nk
}

// Size returns the number of entries in the pack.
func (p *SourcesPack) Size() int { return len(p.Order) }

// CandidateCounts records per-stage candidate counts through retrieval.
type CandidateCounts struct {
	Vector  int `json:"vector"`
	Lexical int `json:"lexical"`
	Recency int `json:"recency"`
	Merged  int `json:"merged"`
	Reranked int `json:"after_rerank"`
	Final   int `json:"final"`
}

// ScoreDistribution summarizes the fused score spread.
type ScoreDistribution struct {
	Top         float64 `json:"top"`
	Median      float64 `json:"median"`
	Min         float64 `json:"min"`
	TopTwoGap   float64 `json:"top_two_gap"`
	UniqueNotes int     `json:"unique_notes"`
	StdDev      float64 `json:"std_dev"`
}

// StageTimings is a per-stage elapsed-time record in milliseconds.
type StageTimings map[string]int64

// QualityFlags are the observability quality signals attached to each
// response.
type QualityFlags struct {
	CoveragePercent         float64 `json:"coverage_percent"`
	DanglingRemoved         int     `json:"dangling_removed"`
	InvalidRemoved          int     `json:"invalid_removed"`
	RegenerationAttempted   bool    `json:"regeneration_attempted"`
	FallbackUsed            bool    `json:"fallback_used"`
	HallucinationsDetected  int     `json:"hallucinations_detected"`
	ContractCompliant       bool    `json:"contract_compliant"`
}

// CitationLogEntry is one observability citation summary.
type CitationLogEntry struct {
	ID         string  `json:"id"`
	NotePrefix string  `json:"note_prefix"`
	Score      float64 `json:"score"`
}

// RetrievalLog is the append-only per-request observability record.
type RetrievalLog struct {
	RequestID       string            `json:"requestId"`
	TraceID         string            `json:"traceId"`
	TenantID        string            `json:"tenantId"`
	Query           string            `json:"query"`
	QueryLength     int               `json:"queryLength"`
	Intent          Intent            `json:"intent"`
	RetrievalMode   RetrievalMode     `json:"retrievalMode"`
	CandidateCounts CandidateCounts   `json:"candidateCounts"`
	ScoreDistribution ScoreDistribution `json:"scoreDistribution"`
	RerankMethod    string            `json:"rerankMethod"`
	Citations       []CitationLogEntry `json:"citations"`
	Timings         StageTimings      `json:"timings"`
	Quality         QualityFlags      `json:"quality"`
	AnswerLength    int               `json:"answerLength"`
	Timestamp       time.Time         `json:"timestamp"`
}

// ValidatedAnswer is the final, post-processed, confidence-scored answer.
type ValidatedAnswer struct {
	Text             string
	Citations        []*Citation
	DroppedCitations []string
	Confidence       ConfidenceLevel
	EnhancedConfidence EnhancedConfidenceLevel
	Timings          StageTimings
}

// AnswerRequest is the external request to the core.
type AnswerRequest struct {
	TenantID            uint64
	Question            string
	ConversationHistory []string
	Filters             *NoteFilters
	Format              ResponseFormat
	Temperature         *float64
	MaxTokens           *int
	TopK                *int
	MinRelevance        *float64
	IncludeSources      []string
	ExcludeSources      []string
	EnableCitationVerification bool
	LanguageHint        string
	CustomSystemPrompt  string
	EmbeddingModelID    string
	ChatModelID         string
	RerankModelID       string
	RequestID           string
}

// CitedSource is one entry of the response's cited-sources list.
type CitedSource struct {
	ID            string  `json:"id"`
	NoteID        string  `json:"noteId"`
	Preview       string  `json:"preview"`
	FormattedDate string  `json:"date"`
	Relevance     float64 `json:"relevance"`
	StartOffset   *int    `json:"startOffset,omitempty"`
	EndOffset     *int    `json:"endOffset,omitempty"`
	Anchor        string  `json:"anchor,omitempty"`
}

// AnswerMetadata is the response's metadata block.
type AnswerMetadata struct {
	Model           string          `json:"model"`
	RequestID       string          `json:"requestId"`
	ElapsedMillis   int64           `json:"elapsedMillis"`
	Intent          Intent          `json:"intent"`
	Confidence      ConfidenceLevel `json:"confidence"`
	SourceCount     int             `json:"sourceCount"`
	Debug           *DebugBlock     `json:"debug,omitempty"`
}

// DebugBlock carries the pipeline's internal diagnostics.
type DebugBlock struct {
	RetrievalMode       RetrievalMode           `json:"retrievalMode"`
	CandidateCounts     CandidateCounts         `json:"candidateCounts"`
	RerankCount         int                     `json:"rerankCount"`
	EnhancedConfidence  EnhancedConfidenceLevel `json:"enhancedConfidence"`
	ConfidenceBreakdown ConfidenceBreakdown     `json:"confidenceBreakdown"`
	CitationQuality     QualityFlags            `json:"citationQuality"`
	PostProcessingMods  []string                `json:"postProcessingModifications"`
	ValidationStats     ValidationStats         `json:"validationStats"`
}

// ConfidenceBreakdown is the four weighted sub-scores behind the overall
// confidence score.
type ConfidenceBreakdown struct {
	CitationDensity  float64 `json:"citationDensity"`
	SourceRelevance  float64 `json:"sourceRelevance"`
	AnswerCoherence  float64 `json:"answerCoherence"`
	ClaimSupport     float64 `json:"claimSupport"`
	Overall          float64 `json:"overall"`
}

// ValidationStats summarizes the Citation Validator's pass.
type ValidationStats struct {
	DanglingCount   int     `json:"danglingCount"`
	DroppedCount    int     `json:"droppedCount"`
	SuspiciousCount int     `json:"suspiciousCount"`
	CoveragePercent float64 `json:"coveragePercent"`
	RepairAttempted bool    `json:"repairAttempted"`
	RepairAccepted  bool    `json:"repairAccepted"`
}

// AnswerResponse is the response from the core.
type AnswerResponse struct {
	Answer         string          `json:"answer"`
	Sources        []*CitedSource  `json:"sources"`
	ContextSources []*CitedSource  `json:"contextSources,omitempty"`
	Metadata       AnswerMetadata  `json:"metadata"`
}

// ErrorKind is the closed set of error kinds the core distinguishes (a tag
// on RAGError, not a type hierarchy).
type ErrorKind string

const (
	ErrorKindInput         ErrorKind = "input_error"
	ErrorKindConfiguration ErrorKind = "configuration_error"
	ErrorKindRateLimited   ErrorKind = "rate_limited"
	ErrorKindTransient     ErrorKind = "transient_backend_error"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindInternal      ErrorKind = "internal"
)

// RAGError is the core's error taxonomy, grounded on
// PerceptivePenguin-MCPRAG-Go's RAGError builder pattern.
type RAGError struct {
	Kind       ErrorKind
	Operation  string
	Message    string
	Cause      error
	RetryAfter time.Duration
}

func (e *RAGError) Error() string {
	if e.Operation != "" {
		return string(e.Kind) + " in " + e.Operation + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *RAGError) Unwrap() error { return e.Cause }

// NewRAGError builds a new RAGError of the given kind.
func NewRAGError(kind ErrorKind, message string) *RAGError {
	return &RAGError{Kind: kind, Message: message}
}

// NewRAGErrorWithCause builds a new RAGError wrapping an underlying cause.
func NewRAGErrorWithCause(kind ErrorKind, message string, cause error) *RAGError {
	return &RAGError{Kind: kind, Message: message, Cause: cause}
}

// WithOperation attaches the operation name that produced the error.
func (e *RAGError) WithOperation(op string) *RAGError {
	e.Operation = op
	return e
}

// WithRetryAfter attaches a retry-after duration (ErrorKindRateLimited).
func (e *RAGError) WithRetryAfter(d time.Duration) *RAGError {
	e.RetryAfter = d
	return e
}

// RequestContext is the single mutable value threaded through every pipeline
// stage for the duration of one request. It is never read across request
// boundaries.
type RequestContext struct {
	RequestID string
	TraceID   string
	TenantID  uint64
	StartedAt time.Time

	Request *AnswerRequest

	// Query Analyzer output.
	Analysis *QueryAnalysis

	// Hybrid Retriever output.
	RetrievalMode   RetrievalMode
	CandidateCounts CandidateCounts
	ScoredChunks    []*ScoredChunk
	RerankMethod    string

	// Sources Pack Builder output.
	Pack *SourcesPack

	// Prompt Builder output.
	SystemPrompt string
	UserPrompt   string

	// Generator output.
	RawAnswer string

	// Citation Validator output.
	ValidatedText     string
	SurvivingCitations []*Citation
	DanglingRemoved   int
	InvalidRemoved    int
	SuspiciousIDs     []string
	DroppedIDs        []string
	CoveragePercent   float64
	ContractCompliant bool
	RepairAttempted   bool
	RepairAccepted    bool
	HallucinationsDetected int

	// Post-Processor output.
	FinalText          string
	PostProcessingMods []string

	// Confidence Scorer output.
	Confidence         ConfidenceLevel
	EnhancedConfidence EnhancedConfidenceLevel
	ConfidenceBreakdown ConfidenceBreakdown

	// Short-circuit paths (empty corpus / no surviving evidence).
	Terminal         bool
	TerminalResponse *AnswerResponse

	Timings StageTimings
}

// RecordTiming stores a stage's elapsed time in milliseconds.
func (r *RequestContext) RecordTiming(stage string, elapsed time.Duration) {
	if r.Timings == nil {
		r.Timings = StageTimings{}
	}
	r.Timings[stage] = elapsed.Milliseconds()
}
