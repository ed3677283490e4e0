// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sentra-dev/sentra/internal/audit"
	"github.com/sentra-dev/sentra/internal/config"
	"github.com/sentra-dev/sentra/internal/executor"
	"github.com/sentra-dev/sentra/internal/pipeline"
	"github.com/sentra-dev/sentra/internal/planner"
	"github.com/sentra-dev/sentra/internal/policy"
	"github.com/sentra-dev/sentra/internal/reasoner"
	"github.com/sentra-dev/sentra/internal/sanitize"
	"github.com/sentra-dev/sentra/internal/server"
	"github.com/sentra-dev/sentra/internal/tools"
	"github.com/sentra-dev/sentra/internal/tools/knowledge"
	"github.com/sentra-dev/sentra/internal/tools/loganalyzer"
	sentraerr "github.com/sentra-dev/sentra/pkg/errors"
	"github.com/sentra-dev/sentra/pkg/types"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server     *server.Server
	Retriever  *knowledge.Retriever
	EventStore loganalyzer.EventStore
	AuditStore audit.Store
}

// WireApp creates all subsystems and wires them together.
func WireApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := slog.Default()

	// 1. Sanitizer.
	rules := sanitize.DefaultRules()
	if cfg.Sanitizer.RulesFile != "" {
		loaded, err := sanitize.LoadRulesFile(cfg.Sanitizer.RulesFile)
		if err != nil {
			return nil, sentraerr.Wrap(err, sentraerr.CodeSanitizeRuleInvalid, "loading sanitizer rules")
		}
		rules = append(rules, loaded...)
	}
	sanitizer, err := sanitize.New(rules,
		sanitize.WithMaxQueryLength(cfg.Sanitizer.MaxQueryLength),
		sanitize.WithMaxSymbolRatio(cfg.Sanitizer.MaxSymbolRatio),
	)
	if err != nil {
		return nil, sentraerr.Wrap(err, sentraerr.CodeSanitizeRuleInvalid, "building sanitizer")
	}

	// 2. Permission matrix.
	grants := cfg.Policy.Grants
	if len(grants) == 0 {
		grants = policy.DefaultGrants()
	}
	matrix, err := policy.NewMatrix(grants)
	if err != nil {
		return nil, err
	}

	// 3. Audit trail.
	auditStore, err := newAuditStore(cfg)
	if err != nil {
		return nil, err
	}
	recorder := audit.NewRecorder(auditStore, log)

	// 4. Knowledge base tool.
	retriever, err := newRetriever(ctx, cfg)
	if err != nil {
		_ = auditStore.Close()
		return nil, err
	}

	// 5. Log analyzer tool.
	eventStore, err := newEventStore(cfg)
	if err != nil {
		_ = auditStore.Close()
		_ = retriever.Close()
		return nil, err
	}
	analyzer := loganalyzer.NewAnalyzer(eventStore)

	registry := tools.NewRegistry(
		knowledge.NewTool(retriever, cfg.Knowledge.TopK),
		loganalyzer.NewTool(analyzer),
	)

	// 6. Reasoner with resilience wrapper.
	client, err := reasoner.New(reasoner.Config{
		Provider:    cfg.Reasoner.Provider,
		Model:       cfg.Reasoner.Model,
		APIKey:      cfg.Reasoner.APIKey,
		BaseURL:     cfg.Reasoner.BaseURL,
		MaxTokens:   cfg.Reasoner.MaxTokens,
		Temperature: cfg.Reasoner.Temperature,
	})
	if err != nil {
		_ = auditStore.Close()
		_ = retriever.Close()
		_ = eventStore.Close()
		return nil, err
	}
	resilient := reasoner.NewResilient(client, reasoner.ResilientConfig{
		Timeout:     cfg.Reasoner.Timeout,
		MaxFailures: uint32(cfg.Reasoner.MaxFailures),
		Cooldown:    cfg.Reasoner.Cooldown,
	}, log)

	// 7. Planner, executor, pipeline.
	plan, err := planner.New(resilient, log)
	if err != nil {
		_ = auditStore.Close()
		_ = retriever.Close()
		_ = eventStore.Close()
		return nil, err
	}
	exec := executor.New(registry, matrix, recorder, log, executor.Options{
		MaxConcurrent: cfg.Executor.MaxConcurrent,
		CallTimeout:   cfg.Executor.CallTimeout,
	})
	pl := pipeline.New(sanitizer, matrix, registry, plan, exec, recorder, log)

	// 8. HTTP server.
	verifier := newVerifier(cfg, log)
	srv, err := server.New(server.Config{
		ListenAddr:      cfg.Server.Listen,
		CORSOrigins:     cfg.Server.AllowedOrigins,
		RatePerMinute:   cfg.Server.RatePerMinute,
		RateBurst:       cfg.Server.RateBurst,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, verifier, pl, matrix, auditStore, log)
	if err != nil {
		_ = auditStore.Close()
		_ = retriever.Close()
		_ = eventStore.Close()
		return nil, err
	}

	return &App{
		Server:     srv,
		Retriever:  retriever,
		EventStore: eventStore,
		AuditStore: auditStore,
	}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	var errs []error
	if a.Retriever != nil {
		errs = append(errs, a.Retriever.Close())
	}
	if a.EventStore != nil {
		errs = append(errs, a.EventStore.Close())
	}
	if a.AuditStore != nil {
		errs = append(errs, a.AuditStore.Close())
	}
	return errors.Join(errs...)
}

func newAuditStore(cfg *config.Config) (audit.Store, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		return audit.NewSQLiteStore(cfg.Audit.DBPath)
	case "memory":
		return audit.NewMemoryStore(), nil
	default:
		return nil, sentraerr.Errorf(sentraerr.CodeStoreBackendUnsupported, "unknown audit backend %q", cfg.Audit.Backend)
	}
}

func newEventStore(cfg *config.Config) (loganalyzer.EventStore, error) {
	switch cfg.Logs.Backend {
	case "sqlite":
		return loganalyzer.NewSQLiteEventStore(cfg.Logs.DBPath)
	case "memory":
		return loganalyzer.NewMemoryEventStore(loganalyzer.SampleEvents(time.Now())), nil
	default:
		return nil, sentraerr.Errorf(sentraerr.CodeStoreBackendUnsupported, "unknown logs backend %q", cfg.Logs.Backend)
	}
}

func newRetriever(ctx context.Context, cfg *config.Config) (*knowledge.Retriever, error) {
	docs := knowledge.DefaultCorpus()
	if cfg.Knowledge.CorpusFile != "" {
		loaded, err := knowledge.LoadDocumentsFile(cfg.Knowledge.CorpusFile)
		if err != nil {
			return nil, err
		}
		docs = loaded
	}

	var embedder knowledge.Embedder
	switch cfg.Knowledge.Embedder {
	case "openai":
		// The embedder shares the reasoner's OpenAI credentials.
		e, err := knowledge.NewOpenAIEmbedder(
			cfg.Reasoner.APIKey,
			cfg.Reasoner.BaseURL,
			cfg.Knowledge.EmbedModel,
			cfg.Knowledge.Dimensions,
		)
		if err != nil {
			return nil, err
		}
		embedder = e
	default:
		embedder = knowledge.NewHashEmbedder(cfg.Knowledge.Dimensions)
	}

	var build knowledge.Builder
	switch cfg.Knowledge.Backend {
	case "sqlite_vec":
		build = knowledge.NewVecIndexBuilder(cfg.Knowledge.DBPath, cfg.Knowledge.Dimensions)
	case "memory":
		build = knowledge.NewMemIndex
	default:
		return nil, sentraerr.Errorf(sentraerr.CodeStoreBackendUnsupported, "unknown knowledge backend %q", cfg.Knowledge.Backend)
	}

	return knowledge.NewRetriever(ctx, embedder, build, docs)
}

func newVerifier(cfg *config.Config, log *slog.Logger) server.TokenVerifier {
	tokens := make(map[string]types.Principal, len(cfg.Auth.Tokens))
	for tok, tp := range cfg.Auth.Tokens {
		tokens[tok] = types.Principal{ID: tp.User, Role: tp.Role}
	}
	if len(tokens) == 0 {
		log.Warn("no auth tokens configured, every request will be rejected")
	}
	return server.NewStaticVerifier(tokens)
}
