// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/adiadia/fraud-consumer/internal/config"
	"github.com/adiadia/fraud-consumer/internal/logging"
	"github.com/adiadia/fraud-consumer/internal/persistence/postgres"
	"github.com/adiadia/fraud-consumer/internal/pipeline"
	"github.com/adiadia/fraud-consumer/internal/scoring"
	"github.com/adiadia/fraud-consumer/internal/sink"
	"github.com/adiadia/fraud-consumer/internal/source"
	httptransport "github.com/adiadia/fraud-consumer/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if cfg.QueueURL == "" {
		log.Fatal("SQS_URL is required")
	}
	if cfg.S3Bucket == "" {
		log.Fatal("S3_BUCKET is required")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPoolWithRetry(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	} else if err := postgres.SchemaReady(ctx, pool); err != nil {
		log.Fatalf("schema not ready: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("aws config load failed: %v", err)
	}

	thresholds := scoring.DefaultThresholds
	if cfg.ThresholdsFile != "" {
		thresholds, err = scoring.LoadThresholds(cfg.ThresholdsFile)
		if err != nil {
			log.Fatalf("thresholds load failed: %v", err)
		}
	}
	engine := scoring.NewEngine(cfg.ModelVersion, thresholds)

	if cfg.ThresholdsFile != "" {
		stopWatch, err := scoring.WatchThresholds(cfg.ThresholdsFile, engine, logging.Component(logger, "scoring"))
		if err != nil {
			log.Fatalf("thresholds watch failed: %v", err)
		}
		defer stopWatch()
	}

	src := source.NewSQS(
		sqs.NewFromConfig(awsCfg),
		cfg.QueueURL,
		cfg.PollWait,
		logging.Component(logger, "source"),
	)
	txSink := sink.NewPostgres(pool, cfg.SinkTimeout, logging.Component(logger, "sink"))
	anSink := sink.NewS3(
		s3.NewFromConfig(awsCfg),
		cfg.S3Bucket,
		cfg.SinkTimeout,
		logging.Component(logger, "sink"),
	)
	deadLetter := sink.NewPostgresDeadLetter(pool, logging.Component(logger, "sink"))

	coord := pipeline.NewCoordinator(pipeline.Deps{
		Source:         src,
		Scorer:         engine,
		TxSink:         txSink,
		Analytics:      anSink,
		DeadLetter:     deadLetter,
		Logger:         logging.Component(logger, "pipeline"),
		MaxAttempts:    cfg.MaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		Visibility:     cfg.VisibilityTimeout,
	})

	workerPool := pipeline.NewPool(pipeline.PoolDeps{
		Coordinator:  coord,
		Source:       src,
		Logger:       logging.Component(logger, "pipeline"),
		Lanes:        cfg.WorkerLanes,
		BatchSize:    cfg.BatchSize,
		Visibility:   cfg.VisibilityTimeout,
		DrainTimeout: cfg.DrainTimeout,
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		Pool:         workerPool,
		DeadLetters:  deadLetter,
		Health:       postgres.NewSchemaHealthChecker(pool),
		Logger:       logging.Component(logger, "http"),
		ModelVersion: engine.ModelVersion,
		Version:      Version,
		Commit:       Commit,
		BuildDate:    BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("ops server listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("consumer started",
		"lanes", cfg.WorkerLanes,
		"queue", cfg.QueueURL,
		"bucket", cfg.S3Bucket,
		"model", engine.ModelVersion(),
	)

	workerPool.Run(ctx)

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
