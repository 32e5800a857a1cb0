// Package main is the entry point of the app builder API server.
//
// main stays small: it loads configuration, builds the dependencies in
// order (logger, database, optional backends, services) and hands them to
// internal/server. All behaviour lives in the internal packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/app-builder/internal/auth"
	"github.com/sakif/app-builder/internal/codegen"
	"github.com/sakif/app-builder/internal/config"
	"github.com/sakif/app-builder/internal/deploy"
	"github.com/sakif/app-builder/internal/deploy/docker"
	"github.com/sakif/app-builder/internal/export"
	"github.com/sakif/app-builder/internal/gitpush"
	"github.com/sakif/app-builder/internal/jobs"
	"github.com/sakif/app-builder/internal/llm"
	"github.com/sakif/app-builder/internal/ratelimit"
	sqliteRepo "github.com/sakif/app-builder/internal/repository/sqlite"
	"github.com/sakif/app-builder/internal/server"
	"github.com/sakif/app-builder/internal/service"
	"github.com/sakif/app-builder/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (default $BUILDER_CONFIG or config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// === 1. LOGGING ===
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := context.Background()

	// === 2. DATABASE ===
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// === 3. AUTH ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		db.Close()
		return err
	}
	var providers []auth.OAuthProvider
	if gh := cfg.Auth.GitHub; gh.Enabled() {
		callback := gh.CallbackURL
		if callback == "" {
			callback = fmt.Sprintf("http://localhost:%d/api/auth/github/callback", cfg.Server.Port)
		}
		providers = append(providers, auth.NewGitHubProvider(gh.ClientID, gh.ClientSecret, callback))
	}
	if g := cfg.Auth.Google; g.Enabled() {
		callback := g.CallbackURL
		if callback == "" {
			callback = fmt.Sprintf("http://localhost:%d/api/auth/google/callback", cfg.Server.Port)
		}
		providers = append(providers, auth.NewGoogleProvider(g.ClientID, g.ClientSecret, callback))
	}

	// === 4. LLM ===
	gen, err := llm.New(cfg.LLM)
	if err != nil {
		db.Close()
		return fmt.Errorf("configuring llm: %w", err)
	}
	var (
		llmName  string
		streamer llm.Streamer
	)
	if gen != nil {
		llmName = gen.Name()
		streamer, _ = gen.(llm.Streamer)
		logger.Info("llm backend configured", slog.String("provider", cfg.LLM.Provider), slog.String("model", llmName))
	} else {
		logger.Warn("no llm configured, generation uses scaffolds and chat echoes")
	}

	// === 5. RATE LIMITING ===
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.Redis.RateLimit, cfg.Redis.Window)
	if cfg.Redis.Addr != "" {
		redisLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.Redis.Addr, cfg.Redis.Password, "builder:rl", cfg.Redis.RateLimit, cfg.Redis.Window)
		if err != nil {
			logger.Warn("redis unavailable, using in-process rate limiting", slog.String("error", err.Error()))
		} else {
			limiter = redisLimiter
		}
	}

	// === 6. OBJECT STORAGE ===
	var store storage.ObjectStore
	if cfg.Storage.Enabled() {
		minioStore, err := storage.NewMinioStore(ctx, cfg.Storage)
		if err != nil {
			logger.Warn("object storage unavailable, exports are returned inline", slog.String("error", err.Error()))
		} else {
			store = minioStore
		}
	}

	// === 7. DEPLOY PROVIDERS ===
	var extra []deploy.Provider
	var dockerProvider *docker.Provider
	if cfg.Deploy.Docker {
		dockerProvider, err = docker.New(ctx, docker.ConfigFrom(cfg.Deploy), logger)
		if err != nil {
			logger.Warn("docker deploys unavailable", slog.String("error", err.Error()))
		} else {
			extra = append(extra, dockerProvider)
		}
	}
	registry := deploy.NewRegistryFromConfig(cfg.Deploy, extra...)

	// === 8. SERVICES ===
	snapshots := service.NewSnapshotService(db, db, cfg.Jobs.KeepAuto, logger)
	projects := service.NewProjectService(db, snapshots, codegen.NewGenerator(gen, logger), logger)

	srv := server.New(cfg.Server, server.Deps{
		DB:        db,
		Tokens:    tokens,
		Limiter:   limiter,
		Auth:      service.NewAuthService(db, tokens, auth.NewPasswordService(), logger, providers...),
		Projects:  projects,
		Snapshots: snapshots,
		Deploys:   service.NewDeployService(registry, db, projects, logger),
		Exports:   service.NewExportService(projects, export.NewExporter(store), gitpush.New(), logger),
		Chat:      service.NewChatService(streamer, logger),
		LLMName:   llmName,
		Storage:   store != nil,
	}, logger)

	// === 9. BACKGROUND JOBS ===
	scheduler := jobs.NewScheduler(snapshots, logger)
	if err := scheduler.RegisterPrune(cfg.Jobs.PruneSchedule); err != nil {
		db.Close()
		return err
	}
	scheduler.Start()

	// closers run in registration order once the listener has drained
	srv.OnShutdown(scheduler.Stop)
	if dockerProvider != nil {
		srv.OnShutdown(func(context.Context) error { return dockerProvider.Close() })
	}
	if c, ok := limiter.(interface{ Close() error }); ok {
		srv.OnShutdown(func(context.Context) error { return c.Close() })
	}
	srv.OnShutdown(func(context.Context) error { return db.Close() })

	return srv.Start(ctx)
}
