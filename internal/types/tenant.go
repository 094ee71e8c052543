package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// RetrieverEngineType names a concrete backend that can serve a RetrieverType.
type RetrieverEngineType string

const (
	PostgresRetrieverEngineType      RetrieverEngineType = "postgres"
	ElasticsearchRetrieverEngineType RetrieverEngineType = "elasticsearch"
	QdrantRetrieverEngineType        RetrieverEngineType = "qdrant"
)

// RetrieverType names one of the hybrid retriever's concurrent sources.
type RetrieverType string

const (
	VectorRetrieverType   RetrieverType = "vector"
	KeywordsRetrieverType RetrieverType = "lexical"
	RecencyRetrieverType  RetrieverType = "recency"
)

// RetrieverEngineParams pairs a source with the backend that serves it.
type RetrieverEngineParams struct {
	RetrieverType       RetrieverType       `json:"retriever_type"`
	RetrieverEngineType RetrieverEngineType `json:"retriever_engine_type"`
}

// RetrieverEngines is a tenant's override of the default engine mapping.
type RetrieverEngines struct {
	Engines []RetrieverEngineParams `json:"engines"`
}

func (c RetrieverEngines) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *RetrieverEngines) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, c)
}

// RetrievalConfig holds a tenant's stored settings for the hybrid retriever
// and confidence/citation thresholds, persisted as JSONB on the tenant row.
// The pipeline does not read them; every request uses the process-wide
// values in config.Config.
type RetrievalConfig struct {
	BaseK             int     `json:"base_k"`
	ContextBudget     int     `json:"context_budget"`
	MinRelevance      float64 `json:"min_relevance"`
	HorizonDays       int     `json:"horizon_days"`
	EnableRerank      bool    `json:"enable_rerank"`
	EnableCitationGen bool    `json:"enable_citation_verification"`
}

func (c *RetrievalConfig) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *RetrievalConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, c)
}

// Tenant represents a tenant whose notes the core can be asked about.
type Tenant struct {
	ID               uint64              `json:"id"                gorm:"primaryKey"`
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	APIKey           string              `json:"api_key"`
	Status           string              `json:"status"             gorm:"default:'active'"`
	RetrieverEngines RetrieverEngines    `json:"retriever_engines"  gorm:"type:jsonb"`
	RetrievalConfig  *RetrievalConfig    `json:"retrieval_config"   gorm:"type:jsonb"`
	StorageQuota     int64               `json:"storage_quota"      gorm:"default:10737418240"`
	StorageUsed      int64               `json:"storage_used"       gorm:"default:0"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	DeletedAt        gorm.DeletedAt      `json:"deleted_at"         gorm:"index"`
}

// DefaultRetrieverEngines is the system-wide fallback mapping when a tenant
// has not overridden its retriever engines.
func DefaultRetrieverEngines() []RetrieverEngineParams {
	return []RetrieverEngineParams{
		{RetrieverType: VectorRetrieverType, RetrieverEngineType: PostgresRetrieverEngineType},
		{RetrieverType: KeywordsRetrieverType, RetrieverEngineType: PostgresRetrieverEngineType},
	}
}

// GetEffectiveEngines returns the tenant's engines if configured, otherwise
// the system defaults.
func (t *Tenant) GetEffectiveEngines() []RetrieverEngineParams {
	if len(t.RetrieverEngines.Engines) > 0 {
		return t.RetrieverEngines.Engines
	}
	return DefaultRetrieverEngines()
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.RetrieverEngines.Engines == nil {
		t.RetrieverEngines.Engines = []RetrieverEngineParams{}
	}
	return nil
}
