package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hupe1980/flowmesh/config"
	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/engine"
	"github.com/hupe1980/flowmesh/httpapi"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/model"
	anthropicmodel "github.com/hupe1980/flowmesh/model/anthropic"
	openaimodel "github.com/hupe1980/flowmesh/model/openai"
	"github.com/hupe1980/flowmesh/producer"
	"github.com/hupe1980/flowmesh/store"
	"github.com/hupe1980/flowmesh/telemetry"
)

func main() {
	cfg := config.Load()

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     parseLogLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Output:    os.Stdout,
		Component: "flowmeshd",
	})

	logger.Info("starting flowmeshd",
		"http_port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"default_model", cfg.DefaultModel,
	)

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	if path := os.Getenv("WORKFLOW_FILE"); path != "" {
		file, err := store.LoadWorkflowFile(path)
		if err != nil {
			log.Fatalf("Failed to load workflow file: %v", err)
		}
		ids, err := file.Seed(context.Background(), db)
		if err != nil {
			log.Fatalf("Failed to seed workflow file: %v", err)
		}
		for name, id := range ids {
			logger.Info("seeded workflow", "name", name, "workflow_id", id)
		}
	}

	recorder := telemetry.NewRecorder(telemetry.LogSink{Logger: logger})

	eng := engine.New(func(o *engine.Options) {
		o.Config = engine.Config{
			EventBufferSize: cfg.EventBufferSize,
			SchemaPolicy:    engine.SchemaPolicyLastStep,
			StepTimeout:     cfg.StepTimeout,
		}
		o.Resolver = newStoreResolver(db, cfg.DefaultModel)
		o.Telemetry = recorder
		o.Logger = logger
	})

	mux := engine.NewMultiplexer(func(o *engine.MultiplexerOptions) {
		o.BufferSize = cfg.EventBufferSize
		o.Logger = logger
	})

	h := httpapi.NewHandler(db, eng, mux, func(o *httpapi.HandlerOptions) {
		o.Logger = logger
	})

	server := echo.New()
	server.HideBanner = true

	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	h.RegisterRoutes(server)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	logger.Info("flowmeshd started", "port", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down flowmeshd")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", "error", err)
	}

	logger.Info("flowmeshd stopped")
}

// newStoreResolver builds one producer per step from its stored agent
// definition, choosing the provider adapter by model identifier.
func newStoreResolver(s store.Store, defaultModel string) engine.ProducerResolver {
	return func(spec core.StepSpec) (core.Producer, error) {
		agent, err := s.GetAgent(context.Background(), spec.AgentID)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.AgentID, err)
		}

		modelID := spec.Model
		if modelID == "" {
			modelID = defaultModel
		}

		var llm model.Model
		if strings.HasPrefix(modelID, "claude") {
			llm = anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
				o.Model = anthropic.Model(modelID)
			})
		} else {
			llm = openaimodel.NewModel(func(o *openaimodel.Options) {
				o.Model = modelID
			})
		}

		return producer.NewModelProducer(agent.Name, llm, func(o *producer.ModelProducerOptions) {
			if agent.Instructions != "" {
				o.Instructions = agent.Instructions
			}
		}), nil
	}
}

func parseLogLevel(level string) logging.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
