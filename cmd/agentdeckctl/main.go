// Package main is agentdeckctl: a headless client that mirrors what a
// browser tab does against the agentdeck server. It subscribes to the event
// stream, keeps a view cache invalidated, watches the session roster for
// pause transitions, and auto-resumes sessions with queued messages.
//
// Useful for driving sessions from scripts and for exercising the full
// client stack against a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/agentdeck/internal/client"
	"github.com/agentdeck/agentdeck/internal/client/api"
	"github.com/agentdeck/agentdeck/internal/client/autoresume"
	"github.com/agentdeck/agentdeck/internal/client/cache"
	"github.com/agentdeck/agentdeck/internal/client/pending"
	"github.com/agentdeck/agentdeck/internal/client/tracker"
	"github.com/agentdeck/agentdeck/internal/common/config"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

func main() {
	queueMsg := flag.String("queue", "", "queue a message for --session and exit")
	sessionID := flag.String("session", "", "session id for --queue")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(cfg, log, *queueMsg, *sessionID); err != nil {
		log.Fatal("agentdeckctl exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logger.Logger, queueMsg, sessionID string) error {
	store, err := pending.OpenStore(cfg.Storage.StatePath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	queue := pending.NewQueue(store, pending.NewLoopbackNotifier(), log)

	if queueMsg != "" {
		if sessionID == "" {
			return fmt.Errorf("--queue requires --session")
		}
		if err := queue.Append(sessionID, queueMsg); err != nil {
			return err
		}
		log.Info("Message queued",
			zap.String("session_id", sessionID))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := client.NewManager(client.Config{
		URL:               fmt.Sprintf("ws://%s/api/v1/stream", cfg.Server.Addr()),
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
	}, log)

	views := cache.NewStore()
	unbindCache := cache.NewInvalidator(views, log).Bind(manager)
	defer unbindCache()

	apiClient := api.NewClient(fmt.Sprintf("http://%s", cfg.Server.Addr()), log)
	processTracker := tracker.NewTracker(log)

	coordinator := autoresume.NewCoordinator(
		queue,
		apiClient,
		autoresume.NewUINotifier(log),
		autoresume.NewDialogRegistry(),
		cfg.Dispatch.Timeout,
		log,
	)
	unbindResume := coordinator.Bind(manager, processTracker)
	defer unbindResume()

	// Nothing is replayed across reconnects: on every connect frame the
	// roster is re-fetched so the tracker never compares against a state
	// that went stale while disconnected.
	removeSync := manager.AddEventListener(stream.KindConnect, func(*stream.Frame) {
		roster, err := apiClient.FetchSessionProcesses(ctx)
		if err != nil {
			log.Warn("Roster resync failed", zap.Error(err))
			return
		}
		for _, transition := range processTracker.Observe(roster) {
			coordinator.HandleTransition(transition)
		}
	})
	defer removeSync()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return manager.Run(groupCtx)
	})

	err = group.Wait()
	if err != nil && ctx.Err() != nil {
		err = nil
	}
	log.Info("agentdeckctl stopped")
	return err
}
