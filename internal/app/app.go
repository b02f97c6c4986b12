// Package app wires the sync core together for the daemon: config,
// store, feed, coordinator, retention and the debug HTTP surface.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/MomenMushtaha/MessageAI-sub000/internal/retention"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/chat"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/config"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/logger"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/notify"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/ratelimit"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/remote"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/status"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/store"
)

// App encapsulates the daemon components and lifecycle.
type App struct {
	cfg    *config.Config
	userID string

	store   *store.Store
	feed    remote.Feed
	svc     *chat.Service
	tracker *status.Tracker

	srv           *http.Server
	stopRetention context.CancelFunc
}

// New initializes resources that do not require a running context. The
// feed may be nil, in which case an in-process loopback feed is used;
// production deployments pass a real adapter.
func New(cfg *config.Config, userID string, feed remote.Feed) (*App, error) {
	_ = godotenv.Load(".env")
	cfg.Normalize()
	logger.InitWithLevel(cfg.Logging.Level)

	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.Server.DBPath, err)
	}
	if feed == nil {
		feed = remote.NewMemoryFeed(cfg.Sync.SnapshotWindow)
		logger.Info("feed_loopback", "window", cfg.Sync.SnapshotWindow)
	}

	limiter := ratelimit.New(
		cfg.RateLimit.MinInterval.Duration(),
		cfg.RateLimit.Window.Duration(),
		cfg.RateLimit.MaxPerWindow,
	)
	svc := chat.New(chat.Options{
		UserID:          userID,
		MessageDebounce: cfg.Sync.MessageDebounce.Duration(),
		ListDebounce:    cfg.Sync.ListDebounce.Duration(),
		SendTimeout:     cfg.Sync.SendTimeout.Duration(),
		SendAttempts:    cfg.Sync.SendAttempts,
		MaxTextLen:      cfg.Sync.MaxTextLen,
		EditWindow:      cfg.Sync.EditWindow.Duration(),
	}, st, feed, limiter, notify.Logging{})

	return &App{
		cfg:     cfg,
		userID:  userID,
		store:   st,
		feed:    feed,
		svc:     svc,
		tracker: status.NewTracker(st, feed),
	}, nil
}

// Run starts retention and the debug HTTP listener, then blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	stop, err := retention.Start(ctx, a.cfg.Retention, a.store)
	if err != nil {
		return err
	}
	a.stopRetention = stop

	errCh := make(chan error, 1)
	if addr := a.cfg.Server.Addr(); addr != "" {
		a.srv = &http.Server{
			Addr:              addr,
			Handler:           a.router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http_listening", "addr", addr, "user", a.userID)
			if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.srv.Shutdown(ctx)
		cancel()
	}
	if a.stopRetention != nil {
		a.stopRetention()
	}
	a.svc.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}
