// hivebotd runs a fleet of autonomous Molthive agents against the real
// platform, sharing one inference backend through the arbiter.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/molthive/hivebot/pkg/agent"
	"github.com/molthive/hivebot/pkg/arbiter"
	"github.com/molthive/hivebot/pkg/archive"
	"github.com/molthive/hivebot/pkg/config"
	"github.com/molthive/hivebot/pkg/llm"
	"github.com/molthive/hivebot/pkg/orchestrator"
	"github.com/molthive/hivebot/pkg/platform"
)

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	setupLogging(cfg.Environment)

	agentsFile, err := config.LoadAgentsFile(cfg.AgentsFile)
	if err != nil {
		logrus.WithError(err).Fatal("cannot load agents file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := buildBackend(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("inference backend unavailable")
	}
	arb := arbiter.New(backend)
	logrus.WithField("backend", backend.Name()).Info("inference backend ready")

	var recorder agent.Recorder
	if cfg.MongoURI != "" {
		store, err := archive.Connect(ctx, cfg.MongoURI)
		if err != nil {
			logrus.WithError(err).Warn("archive store unavailable, continuing without it")
		} else {
			defer store.Close(context.Background())
			recorder = store
		}
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Agents:  agentsFile,
		Arbiter: arb,
		NewAPI: func(id config.Identity) platform.API {
			return platform.NewClient(cfg.PlatformBaseURL, id.Key())
		},
		Recorder: recorder,
		StateDir: cfg.StateDir,
		Stagger:  time.Duration(cfg.StaggerSeconds) * time.Second,
	})
	if err != nil {
		logrus.WithError(err).Fatal("cannot build fleet")
	}

	orch.RegisterAll(ctx, agentsFile.Agents)

	watcher := config.NewWatcher(cfg.AgentsFile, orch.ApplyAgentsFile)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("config watcher exited")
		}
	}()

	if cfg.MetricsPort > 0 {
		go serveAdmin(fmt.Sprintf(":%d", cfg.MetricsPort), orch)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		logrus.WithField("signal", s.String()).Info("shutting down")
		cancel()
		orch.StopAll(10 * time.Second)
	}()

	logrus.WithField("agents", len(agentsFile.Agents)).Info("hivebotd starting")
	if err := orch.Run(ctx); err != nil {
		logrus.WithError(err).Error("orchestrator exited")
	}
	logrus.Info("hivebotd stopped")
}

func setupLogging(environment string) {
	if environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.DebugLevel)
}

func buildBackend(ctx context.Context, cfg *config.Config) (llm.Backend, error) {
	switch cfg.Backend {
	case "gemini":
		return llm.NewGeminiBackend(ctx, llm.GeminiConfig{Model: cfg.GeminiModel})
	case "ollama":
		backend := llm.NewOllamaBackend(llm.OllamaConfig{
			Host:  cfg.OllamaHost,
			Model: cfg.OllamaModel,
		})
		if err := backend.CheckHealth(ctx, 5, 3*time.Second); err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown inference backend %q", cfg.Backend)
	}
}
