package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"

	"github.com/plotbound/plotbound/presence-go/internal/agent"
	"github.com/plotbound/plotbound/presence-go/internal/aggregator"
	"github.com/plotbound/plotbound/presence-go/internal/config"
	"github.com/plotbound/plotbound/presence-go/internal/engagement"
	"github.com/plotbound/plotbound/presence-go/internal/presence"
	"github.com/plotbound/plotbound/presence-go/internal/reporter"
	"github.com/plotbound/plotbound/presence-go/internal/session"
	"github.com/plotbound/plotbound/presence-go/internal/transport"
	"github.com/plotbound/plotbound/presence-go/internal/typeid"
)

// fanoutSender feeds the local heartbeat into the aggregator before it
// goes over the wire, so the local user's presence never depends on the
// server echoing it back.
type fanoutSender struct {
	remote *transport.Client
	agg    *aggregator.Aggregator
}

func (s *fanoutSender) Send(ctx context.Context, snap presence.Snapshot) error {
	if err := s.agg.Ingest(snap); err != nil {
		slog.Warn("ingest local heartbeat", "error", err)
	}
	return s.remote.Send(ctx, snap)
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	userID, err := session.UserIDFromToken(cfg.SessionToken, cfg.JWTSecret)
	if err != nil {
		// Heartbeats stay off; remote aggregates still work read-only.
		slog.Warn("session token rejected, running unauthenticated", "error", err)
		userID = ""
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := quartz.NewReal()
	sessionID := typeid.NewSessionID()

	client := transport.NewClient(cfg.ServerURL, cfg.SessionToken, sessionID)
	agg := aggregator.New(clock)
	sampler := engagement.NewSampler(clock)
	rep := reporter.New(clock, sampler, &fanoutSender{remote: client, agg: agg}, userID)

	if users, err := client.FetchActive(ctx); err != nil {
		slog.Warn("bootstrap active users failed", "error", err)
	} else {
		agg.IngestBatch(users)
		slog.Info("bootstrapped presence table", "users", len(users))
	}

	listener := transport.NewPushListener(cfg.ServerURL, cfg.SessionToken, userID, agg)
	go listener.Listen(ctx)

	agg.Start(ctx)
	rep.Start(ctx)
	go logEvents(ctx, agg.Events())

	handler := agent.NewHandler(rep, agg)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down agent")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("presence agent starting", "addr", addr, "session", sessionID, "authenticated", userID != "")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("agent server error", "error", err)
		os.Exit(1)
	}
}

func logEvents(ctx context.Context, events <-chan aggregator.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch e := ev.(type) {
			case aggregator.WorkspaceActivityChanged:
				slog.Info("workspace activity changed",
					"workspace", e.WorkspaceID, "browsing", e.BrowsingCount, "writing", e.WritingCount)
			case aggregator.DocumentActivityChanged:
				if e.Editing != nil {
					slog.Info("document activity changed",
						"document", e.DocumentID, "editor", e.Editing.EditingUserID, "type", e.Editing.EditingType)
				} else {
					slog.Info("document activity changed", "document", e.DocumentID, "editor", "")
				}
			case aggregator.SiteActivityChanged:
				slog.Info("site activity changed",
					"browsing", e.BrowsingCount, "writing", e.WritingCount, "total", e.Total)
			}
		}
	}
}
