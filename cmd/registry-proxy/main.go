package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	registryhttp "github.com/localregistry/proxy/internal/adapters/driving/http"
	"github.com/localregistry/proxy/internal/adapters/driven/filecache"
	"github.com/localregistry/proxy/internal/adapters/driven/hashing"
	"github.com/localregistry/proxy/internal/adapters/driven/modelbackend"
	"github.com/localregistry/proxy/internal/adapters/driven/postgres"
	redisadapter "github.com/localregistry/proxy/internal/adapters/driven/redis"
	"github.com/localregistry/proxy/internal/adapters/driven/upstream"
	"github.com/localregistry/proxy/internal/chunking"
	"github.com/localregistry/proxy/internal/config"
	"github.com/localregistry/proxy/internal/core/ports/driven"
	"github.com/localregistry/proxy/internal/core/services"
	"github.com/localregistry/proxy/internal/registry"
	"github.com/localregistry/proxy/internal/worker"
)

var version = "dev"

func main() {
	cfg := config.Load()
	cfg.Version = version

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("main: shutdown signal received")
		cancel()
	}()

	logger.Info("main: connecting to postgres")
	dbConfig := postgres.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
	db, err := postgres.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatalf("main: connect postgres: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("main: init schema: %v", err)
	}
	logger.Info("main: postgres ready")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("main: parse redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("main: connect redis: %v", err)
		}
		defer redisClient.Close()
		logger.Info("main: redis ready")
	}

	files, err := filecache.NewDiskCache(cfg.CacheDir)
	if err != nil {
		log.Fatalf("main: init file cache: %v", err)
	}

	hashEngine := hashing.NewEngine()

	upstreamClient := upstream.NewRegistryClient(upstream.Config{
		BaseURL:            cfg.UpstreamBaseURL,
		MetadataTimeout:    cfg.MetadataTimeout,
		TarballIdleTimeout: cfg.TarballIdleTimeout,
		MaxConnsPerHost:    cfg.MaxConnsPerHost,
	})

	modelClient := modelbackend.NewClient(modelbackend.Config{
		APIKey:          cfg.ModelAPIKey,
		BaseURL:         cfg.ModelBaseURL,
		EmbeddingModel:  cfg.EmbeddingModel,
		GenerationModel: cfg.GenerationModel,
		Dimensions:      cfg.EmbeddingDimensions,
		Timeout:         cfg.ModelTimeout,
	})

	packageStore := postgres.NewPackageStore(db)
	chunkStore := postgres.NewChunkStore(db)
	auditStore := postgres.NewAuditStore(db)

	var embeddingCache driven.EmbeddingCacheStore
	var responseCache driven.ResponseCacheStore
	var taskQueue driven.TaskQueue
	if redisClient != nil {
		embeddingCache = redisadapter.NewEmbeddingCacheStore(redisClient)
		responseCache = redisadapter.NewResponseCacheStore(redisClient)
		taskQueue = redisadapter.NewTaskQueue(redisClient)
		logger.Info("main: using redis for caches and reconcile queue")
	} else {
		embeddingCache = postgres.NewEmbeddingCacheStore(db)
		responseCache = postgres.NewResponseCacheStore(db)
		taskQueue = postgres.NewTaskQueue(db)
		logger.Info("main: using postgres for caches and reconcile queue")
	}

	verifier := registry.NewVerifier(upstreamClient, hashEngine, files, auditStore, packageStore, logger)
	proxyService := services.NewProxyService(upstreamClient, files, packageStore, verifier, logger)

	chunkCfg := chunking.Config{ChunkSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	ingestService := services.NewIngestService(upstreamClient, chunkStore, modelClient, chunkCfg)
	retrievalCfg := services.RetrievalConfig{
		MinSimilarity:       cfg.MinSimilarity,
		HybridVectorWeight:  cfg.HybridVectorWeight,
		HybridLexicalWeight: cfg.HybridLexicalWeight,
		EmbeddingCacheTTL:   cfg.EmbeddingCacheTTL,
	}
	retrievalService := services.NewRetrievalService(chunkStore, embeddingCache, modelClient, retrievalCfg)
	chatService := services.NewChatService(responseCache, retrievalService, modelClient, cfg.ResponseCacheTTL)
	statsService := services.NewStatsService(packageStore, chunkStore, embeddingCache, responseCache, auditStore)

	reconciler := worker.New(taskQueue, files, packageStore, logger, cfg.ReconcileInterval)
	reconciler.Start(ctx)
	defer reconciler.Stop()

	var cachePinger registryhttp.Pinger
	if redisClient != nil {
		cachePinger = redisPinger{redisClient}
	}

	server := registryhttp.NewServer(
		registryhttp.Config{
			Addr:            cfg.Addr,
			Version:         cfg.Version,
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
		proxyService,
		chatService,
		retrievalService,
		ingestService,
		statsService,
		dbPinger{db},
		cachePinger,
		logger,
	)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.Info("main: shutting down http server")
		shutdownCtx := context.Background()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("main: http shutdown failed", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("main: http server: %v", err)
	}
	<-shutdownDone
}

type dbPinger struct {
	db *postgres.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
