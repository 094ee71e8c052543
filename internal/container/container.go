// Package container wires the dependency-injection graph for the
// retrieval-augmented answering core: configuration, infrastructure
// clients (Postgres, Redis, optional Qdrant/Elasticsearch), the retrieval
// and generation stack, and the 9-stage ragpipeline.
package container

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/panjf2000/ants/v2"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	repository "github.com/noteqa/ragcore/internal/application/repository"
	"github.com/noteqa/ragcore/internal/application/service"
	"github.com/noteqa/ragcore/internal/bgqueue"
	"github.com/noteqa/ragcore/internal/config"
	"github.com/noteqa/ragcore/internal/database"
	"github.com/noteqa/ragcore/internal/generator"
	"github.com/noteqa/ragcore/internal/handler"
	"github.com/noteqa/ragcore/internal/logger"
	"github.com/noteqa/ragcore/internal/modelservice"
	"github.com/noteqa/ragcore/internal/ragpipeline"
	"github.com/noteqa/ragcore/internal/ratelimiter"
	"github.com/noteqa/ragcore/internal/retrieval"
	"github.com/noteqa/ragcore/internal/router"
	"github.com/noteqa/ragcore/internal/tracing"
	"github.com/noteqa/ragcore/internal/types/interfaces"
)

// BuildContainer registers every provider the HTTP and CLI entrypoints
// need and returns the same container for chaining.
func BuildContainer(c *dig.Container) *dig.Container {
	must(c.Provide(loadConfig))
	must(c.Provide(initTracerShutdown))
	must(c.Provide(initDatabase))
	must(c.Provide(initRedisClient))
	must(c.Provide(initAntsPool))
	must(c.Provide(newBackgroundQueue))

	must(c.Provide(repository.NewTenantRepository))
	must(c.Provide(repository.NewChunkStore))
	must(c.Provide(service.NewTenantService))

	must(c.Provide(newModelService))

	must(c.Provide(newVectorSource))
	must(c.Provide(newLexicalSource))
	must(c.Provide(newRecencySource))
	must(c.Provide(newEmbeddingCache))
	must(c.Provide(newHybridRetriever))

	must(c.Provide(newGenerator))
	must(c.Provide(newRateLimiter))

	must(c.Provide(ragpipeline.NewEventManager))
	must(c.Provide(newQueryAnalyzer))
	must(c.Provide(newRetrieverStage))
	must(c.Provide(newSourcesPackBuilder))
	must(c.Provide(newPromptBuilder))
	must(c.Provide(newGeneratorStage))
	must(c.Provide(newCitationValidator))
	must(c.Provide(ragpipeline.NewPostProcessor))
	must(c.Provide(newConfidenceScorer))
	must(c.Provide(newObserver))

	// Every stage self-registers against the EventManager as a side effect
	// of construction; force all nine into existence before the Pipeline
	// (which only depends on the EventManager) is built.
	must(c.Invoke(func(
		_ *ragpipeline.QueryAnalyzer, _ *ragpipeline.RetrieverStage, _ *ragpipeline.SourcesPackBuilder,
		_ *ragpipeline.PromptBuilder, _ *ragpipeline.GeneratorStage, _ *ragpipeline.CitationValidator,
		_ *ragpipeline.PostProcessor, _ *ragpipeline.ConfidenceScorer, _ *ragpipeline.Observer,
	) {
	}))

	must(c.Provide(ragpipeline.NewPipeline))

	must(c.Provide(handler.NewAskHandler))
	must(c.Provide(router.NewRouter))

	return c
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(os.Getenv("RAGCORE_CONFIG_FILE"))
}

// initTracerShutdown wires the OTLP exporter and returns its shutdown func
// so the entrypoint can flush spans on exit.
func initTracerShutdown(cfg *config.Config) (func(context.Context) error, error) {
	return tracing.InitTracer(context.Background(), cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint)
}

func initRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("container: connecting to redis: %w", err)
	}
	return client, nil
}

// initDatabase opens the Postgres connection and runs migrations unless
// AUTO_MIGRATE=false.
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("container: opening database: %w", err)
	}

	if os.Getenv("AUTO_MIGRATE") != "false" {
		if err := database.RunMigrationsWithOptions(cfg.Database.DSN, database.MigrationOptions{
			AutoRecoverDirty: os.Getenv("AUTO_RECOVER_DIRTY") != "false",
		}); err != nil {
			logger.Warnf(context.Background(), "database migration failed: %v (continuing)", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)

	database.TenantIsolationMiddleware(db)
	return db, nil
}

func initAntsPool() (*ants.Pool, error) {
	size := 10
	if v := os.Getenv("CONCURRENCY_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			size = n
		}
	}
	return ants.NewPool(size, ants.WithPreAlloc(true))
}

func newBackgroundQueue(cfg *config.Config) bgqueue.BackgroundQueue {
	return bgqueue.New(cfg.Redis.Addr)
}

func newModelService(cfg *config.Config, pool *ants.Pool) interfaces.ModelService {
	return modelservice.New(cfg.Models, pool)
}

// newVectorSource picks Postgres or Qdrant per RETRIEVE_DRIVER, defaulting
// to Postgres (pgvector) when unset.
func newVectorSource(cfg *config.Config, db *gorm.DB, chunks interfaces.ChunkStore) (retrieval.VectorSource, error) {
	if activeDriver(cfg) == "qdrant" {
		client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Qdrant.Addr})
		if err != nil {
			return nil, fmt.Errorf("container: qdrant client: %w", err)
		}
		return retrieval.NewQdrantVectorSource(client, cfg.Qdrant.Collection, chunks), nil
	}
	return retrieval.NewPostgresVectorSource(db, chunks), nil
}

// newLexicalSource picks Postgres or Elasticsearch per RETRIEVE_DRIVER,
// defaulting to Postgres.
func newLexicalSource(cfg *config.Config, db *gorm.DB, chunks interfaces.ChunkStore) (retrieval.LexicalSource, error) {
	if activeDriver(cfg) == "elasticsearch" {
		client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Elasticsearch.Addresses})
		if err != nil {
			return nil, fmt.Errorf("container: elasticsearch client: %w", err)
		}
		return retrieval.NewElasticsearchLexicalSource(client, cfg.Elasticsearch.Index, chunks), nil
	}
	return retrieval.NewPostgresLexicalSource(db, chunks), nil
}

func activeDriver(cfg *config.Config) string {
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("RETRIEVE_DRIVER")))
	if driver == "" {
		return "postgres"
	}
	return driver
}

func newRecencySource(chunks interfaces.ChunkStore, cfg *config.Config) retrieval.RecencySource {
	return retrieval.NewRecencySource(chunks, cfg.Retrieval.RecencyHalfLifeDays)
}

func newEmbeddingCache(cfg *config.Config) *retrieval.EmbeddingCache {
	return retrieval.NewEmbeddingCache(
		cfg.EmbeddingCache.MaxEntries, cfg.EmbeddingCache.DefaultTTL,
		cfg.EmbeddingCache.PromotedTTL, cfg.EmbeddingCache.PromoteAfterHits,
	)
}

func newHybridRetriever(
	cfg *config.Config, cache *retrieval.EmbeddingCache, vector retrieval.VectorSource,
	lexical retrieval.LexicalSource, recency retrieval.RecencySource, models interfaces.ModelService,
) (*retrieval.HybridRetriever, error) {
	reranker, err := models.GetRerankModel(context.Background(), cfg.Models.DefaultRerankModelID)
	if err != nil {
		return nil, fmt.Errorf("container: default rerank model: %w", err)
	}
	return retrieval.NewHybridRetriever(cfg.Retrieval, cache, vector, lexical, recency, reranker), nil
}

func newGenerator(cfg *config.Config) (*generator.Generator, error) {
	return generator.New(cfg.Generator)
}

func newRateLimiter(client *redis.Client, cfg *config.Config) *ratelimiter.Limiter {
	return ratelimiter.New(client, cfg.RateLimit)
}

func newQueryAnalyzer(em *ragpipeline.EventManager, cfg *config.Config) *ragpipeline.QueryAnalyzer {
	return ragpipeline.NewQueryAnalyzer(em, cfg.Retrieval)
}

func newRetrieverStage(
	em *ragpipeline.EventManager, hr *retrieval.HybridRetriever,
	models interfaces.ModelService, chunks interfaces.ChunkStore,
) *ragpipeline.RetrieverStage {
	return ragpipeline.NewRetrieverStage(em, hr, models, chunks)
}

func newSourcesPackBuilder(em *ragpipeline.EventManager, cfg *config.Config) *ragpipeline.SourcesPackBuilder {
	return ragpipeline.NewSourcesPackBuilder(em, cfg.Retrieval)
}

func newPromptBuilder(em *ragpipeline.EventManager) *ragpipeline.PromptBuilder {
	return ragpipeline.NewPromptBuilder(em, ragpipeline.PromptTierV2)
}

func newGeneratorStage(em *ragpipeline.EventManager, gen *generator.Generator, models interfaces.ModelService) *ragpipeline.GeneratorStage {
	return ragpipeline.NewGeneratorStage(em, gen, models)
}

func newCitationValidator(em *ragpipeline.EventManager, cfg *config.Config, gen *ragpipeline.GeneratorStage) *ragpipeline.CitationValidator {
	return ragpipeline.NewCitationValidator(em, cfg.Citation, gen)
}

func newConfidenceScorer(em *ragpipeline.EventManager, cfg *config.Config) *ragpipeline.ConfidenceScorer {
	return ragpipeline.NewConfidenceScorer(em, cfg.Confidence)
}

func newObserver(em *ragpipeline.EventManager) *ragpipeline.Observer {
	return ragpipeline.NewObserver(em, nil)
}
