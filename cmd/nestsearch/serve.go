package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/owasp/nest-search/pkg/agent"
	"github.com/owasp/nest-search/pkg/cache"
	"github.com/owasp/nest-search/pkg/embedders"
	"github.com/owasp/nest-search/pkg/engine"
	"github.com/owasp/nest-search/pkg/llms"
	"github.com/owasp/nest-search/pkg/metrics"
	"github.com/owasp/nest-search/pkg/nest"
	"github.com/owasp/nest-search/pkg/retriever"
	"github.com/owasp/nest-search/pkg/router"
	"github.com/owasp/nest-search/pkg/server"
	"github.com/owasp/nest-search/pkg/store"
	"github.com/owasp/nest-search/pkg/vector"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host string `help:"Address to bind (overrides config)."`
	Port int    `help:"Port to listen on (overrides config)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	mtr := metrics.New()

	base, err := embedders.NewFromConfig(&cfg.Embedder)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	embedder := embedders.NewInstrumented(base, mtr.EmbedCalls, mtr.EmbedFailures)
	defer embedder.Close()

	llm, err := llms.NewFromConfig(&cfg.LLM)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	defer llm.Close()

	backend, err := vector.NewFromConfig(&cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	defer backend.Close()

	st, err := store.New(&cfg.Database, backend, embedder, cfg.VectorStore.Collection)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	defer st.Close()

	svc := engine.NewService(&cfg.Engine)
	for _, schema := range engine.Collections() {
		if err := svc.EnsureCollection(ctx, schema); err != nil {
			slog.Warn("collection not ready", "collection", schema.Name, "error", err)
		}
	}

	hybrid := retriever.NewHybrid(&cfg.Retriever,
		retriever.NewEngineLexical(svc),
		retriever.NewVectorSearcher(embedder, st))

	intents := router.New(llm)
	seedEntityNames(ctx, svc, intents)

	controller := agent.New(&cfg.Agent, hybrid,
		agent.NewLLMGenerator(&cfg.Agent, llm),
		agent.NewLLMEvaluator(llm))

	var geo engine.GeoResolver
	if len(cfg.Server.GeoIPTable) > 0 {
		geo = engine.StaticGeoResolver(cfg.Server.GeoIPTable)
	}

	srv := server.New(&cfg.Server, svc, controller, intents, st,
		cache.New(&cfg.Cache, "nest"), geo, mtr)

	return srv.ListenAndServe(ctx)
}

// seedEntityNames pages through the indexed collections and teaches the
// intent router each entity's name, so lookup queries can be answered
// directly from stored contexts.
func seedEntityNames(ctx context.Context, svc *engine.Service, intents *router.Router) {
	seeded := 0
	for _, t := range nest.EntityTypes() {
		collection := t.Collection()
		for page := 1; ; page++ {
			res, err := svc.Search(ctx, collection, engine.Params{
				IncludeFields: []string{"id", "name"},
				Page:          page,
				PerPage:       100,
			})
			if err != nil {
				slog.Warn("entity name seeding failed", "collection", collection, "error", err)
				break
			}
			if len(res.Hits) == 0 {
				break
			}
			for _, h := range res.Hits {
				name, _ := h.Document["name"].(string)
				rawID, _ := h.Document["id"].(string)
				id, err := strconv.ParseUint(rawID, 10, 64)
				if name == "" || err != nil {
					continue
				}
				intents.RegisterEntity(name, nest.EntityRef{Type: t, ID: id})
				seeded++
			}
			if page >= res.NbPages {
				break
			}
		}
	}
	slog.Info("entity names seeded", "count", seeded)
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(version())
	return nil
}
