package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querypilot/querypilot/internal/api"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/convo"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/pipeline"
	"github.com/querypilot/querypilot/internal/sandbox"
	duckdbengine "github.com/querypilot/querypilot/internal/sandbox/duckdb"
	postgresengine "github.com/querypilot/querypilot/internal/sandbox/postgres"
	"github.com/querypilot/querypilot/internal/schema"
	objectschema "github.com/querypilot/querypilot/internal/schema/object"
	postgresschema "github.com/querypilot/querypilot/internal/schema/postgres"
	"github.com/querypilot/querypilot/internal/synth"
	"github.com/querypilot/querypilot/internal/validate"
)

func main() {
	cfg, err := config.LoadFromEnv("querypilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	engine, storeDB, err := openEngine(cfg)
	if err != nil {
		logger.Error("failed to open store engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	catalog, err := loadCatalog(context.Background(), cfg, storeDB)
	if err != nil {
		logger.Error("failed to load schema catalog", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema catalog loaded",
		slog.String("fingerprint", catalog.Fingerprint()),
		slog.Int("tables", len(catalog.TableNames())),
	)

	synthesizer, err := synth.NewOpenAISynthesizer(synth.OpenAIConfig{
		BaseURL:     cfg.Synth.BaseURL,
		APIKey:      cfg.Synth.APIKey,
		Model:       cfg.Synth.Model,
		Temperature: cfg.Synth.Temperature,
		Timeout:     cfg.Synth.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize synthesizer", slog.Any("error", err))
		os.Exit(1)
	}

	validator := validate.New(catalog, validate.Config{
		MaxNodes:          cfg.Validator.MaxNodes,
		MaxJoins:          cfg.Validator.MaxJoins,
		MaxSubqueryDepth:  cfg.Validator.MaxSubqueryDepth,
		WideTableRowCount: cfg.Validator.WideTableRowCount,
	})
	sessions := convo.NewManager(cfg.Convo.RetainTurns, cfg.Convo.SessionTTL)
	turns := pipeline.New(catalog, validator, synthesizer, engine, sessions, logger, pipeline.Config{
		MaxRounds:    cfg.Pipeline.MaxRounds,
		MemoizeSize:  cfg.Pipeline.MemoizeSize,
		RowCap:       cfg.Store.RowCap,
		QueryTimeout: cfg.Store.QueryTimeout,
	})

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Readiness:         api.CheckEngine(engine.HealthCheck),
		DependencyTimeout: time.Second,
		Pipeline:          turns,
		Sessions:          sessions,
		Catalog:           catalog,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// openEngine opens the configured backend. The returned loaderDB is the
// pooled postgres handle when the backend is postgres, for catalog
// introspection; it is nil for duckdb.
func openEngine(cfg config.Config) (sandbox.Engine, *postgresschema.Loader, error) {
	switch cfg.Store.Backend {
	case config.BackendDuckDB:
		engine, err := duckdbengine.Open(cfg.Store.Path)
		return engine, nil, err
	default:
		db, err := postgresschema.Open(context.Background(), postgresschema.DBConfig{
			DSN:             cfg.Store.DSN,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		return postgresengine.NewEngine(db), postgresschema.NewLoader(db), nil
	}
}

func loadCatalog(ctx context.Context, cfg config.Config, storeLoader *postgresschema.Loader) (*schema.Catalog, error) {
	var (
		metadata schema.Metadata
		err      error
	)
	switch cfg.Schema.Source {
	case config.SchemaFromObject:
		var loader *objectschema.Loader
		loader, err = objectschema.New(objectschema.Config{
			Endpoint:        cfg.Schema.ObjectEndpoint,
			Region:          cfg.Schema.ObjectRegion,
			Bucket:          cfg.Schema.ObjectBucket,
			Key:             cfg.Schema.ObjectKey,
			AccessKeyID:     cfg.Schema.AccessKeyID,
			SecretAccessKey: cfg.Schema.SecretAccessKey,
			UseSSL:          cfg.Schema.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		metadata, err = loader.Load(ctx)
	default:
		if storeLoader == nil {
			return nil, errors.New("schema source 'store' requires the postgres backend; use the object source with duckdb")
		}
		metadata, err = storeLoader.Load(ctx)
	}
	if err != nil {
		return nil, err
	}
	return schema.Load(metadata)
}
