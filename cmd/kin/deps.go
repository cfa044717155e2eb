package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/domain/services"
	"github.com/ersonp/kin-core/internal/infrastructure/broker"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
	"github.com/ersonp/kin-core/internal/infrastructure/heuristics"
	"github.com/ersonp/kin-core/internal/infrastructure/llm"
	"github.com/ersonp/kin-core/internal/infrastructure/llm/openai"
	"github.com/ersonp/kin-core/internal/infrastructure/logging"
	"github.com/ersonp/kin-core/internal/infrastructure/profilecache"
	"github.com/ersonp/kin-core/internal/infrastructure/relationaldb/sqlite"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and repositories are internal.
type Deps struct {
	Config      *config.Config
	Log         *logrus.Entry
	Persons     *handlers.PersonHandler
	Relations   *handlers.RelationshipHandler
	Suggestions *handlers.SuggestionHandler
	Imports     *handlers.ImportHandler
	Jobs        *handlers.JobHandler
}

// internalDeps holds all dependencies including low-level components.
type internalDeps struct {
	Deps
	relationalDB *sqlite.Repository
	queue        *broker.Queue
	guesser      *llm.Guarded
}

// withDeps loads config and builds dependencies, then calls the provided function.
// It handles cleanup automatically.
func withDeps(ctx context.Context, fn func(*Deps) error) error {
	return withInternalDeps(ctx, func(d *internalDeps) error {
		return fn(&d.Deps)
	})
}

// withInternalDeps provides access to all dependencies including low-level components.
func withInternalDeps(ctx context.Context, fn func(*internalDeps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.Setup(logrus.StandardLogger(), cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	relationalDB, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return fmt.Errorf("creating sqlite repository: %w", err)
	}
	defer relationalDB.Close()

	if err := relationalDB.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring sqlite schema: %w", err)
	}

	deps := &internalDeps{relationalDB: relationalDB}

	// Redis carries the task queue and the event channel. Without it jobs run
	// inline and events only reach the log.
	var events ports.EventPublisher = broker.NewLogPublisher(log)
	var taskQueue ports.TaskQueue
	if cfg.Redis.Addr != "" {
		client, err := broker.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		deps.queue = broker.NewQueue(client, cfg.Redis)
		taskQueue = deps.queue
		events = broker.NewPublisher(client, cfg.Redis.EventsChannel)
	} else if cfg.Deduction.Async {
		log.Warn("deduction.async needs redis.addr, propagating inline")
	}

	profiles := profilecache.New(relationalDB, cfg.Profiles)
	store := services.NewEdgeStore(relationalDB, profiles, heuristics.NewNameList(nil))
	validator := services.NewValidator(ageRules(cfg.Validation), relationalDB)
	deduction := services.NewDeductionService(store, validator, log)

	reqOpts := []services.RequestServiceOption{services.WithEventPublisher(events)}
	if taskQueue != nil {
		reqOpts = append(reqOpts, services.WithTaskQueue(taskQueue, cfg.Deduction.Async))
	}
	requests := services.NewRequestService(relationalDB, store, validator, deduction, log, reqOpts...)

	sugOpts := []services.SuggestionServiceOption{services.WithSuggestionEvents(events)}
	if cfg.LLM.Enabled() {
		client, err := openai.NewClient(cfg.LLM)
		if err != nil {
			return fmt.Errorf("creating llm client: %w", err)
		}
		deps.guesser = llm.NewGuarded(client, cfg.LLM, log)
		sugOpts = append(sugOpts, services.WithGuesser(deps.guesser))
	}
	suggestions := services.NewSuggestionService(
		relationalDB, store, validator, requests,
		services.SuggestionConfig{Limit: cfg.Suggestions.Limit, MinConfidence: cfg.LLM.MinConfidence},
		log, sugOpts...,
	)

	persons := services.NewPersonService(relationalDB)
	repair := services.NewRepairService(relationalDB, store, log)
	refresh := handlers.NewRefresher(suggestions, taskQueue, log)

	deps.Deps = Deps{
		Config:      cfg,
		Log:         log,
		Persons:     handlers.NewPersonHandler(persons),
		Relations:   handlers.NewRelationshipHandler(persons, requests, deduction, repair, store, refresh),
		Suggestions: handlers.NewSuggestionHandler(persons, suggestions),
		Imports:     handlers.NewImportHandler(services.NewImportService(persons, requests), refresh),
		Jobs:        handlers.NewJobHandler(deduction, suggestions, log),
	}

	return fn(deps)
}

func ageRules(cfg config.ValidationConfig) services.AgeRules {
	rules := services.DefaultAgeRules()
	if cfg.ParentChildMinGap > 0 {
		rules.ParentChildMinGap = cfg.ParentChildMinGap
	}
	if cfg.ParentChildMaxGap > 0 {
		rules.ParentChildMaxGap = cfg.ParentChildMaxGap
	}
	if cfg.SiblingMaxGap > 0 {
		rules.SiblingMaxGap = cfg.SiblingMaxGap
	}
	if cfg.GrandparentMinGap > 0 {
		rules.GrandparentMinGap = cfg.GrandparentMinGap
	}
	return rules
}
