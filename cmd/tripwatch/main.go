// Command tripwatch joins a shared trip as a headless participant and logs
// the document as it changes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qqoqto/travel-planner/internal/config"
	"github.com/qqoqto/travel-planner/internal/identity"
	"github.com/qqoqto/travel-planner/internal/remote"
	"github.com/qqoqto/travel-planner/internal/session"
	"github.com/qqoqto/travel-planner/internal/share"
	"github.com/qqoqto/travel-planner/internal/storage/sqlite"
	"github.com/qqoqto/travel-planner/pkg/logging"
)

const closeTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	logging.Setup()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Participant failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	prefs, err := sqlite.New(cfg.Client.LocalStatePath)
	if err != nil {
		return err
	}
	defer prefs.Close()

	var signer *share.Signer
	var opts []identity.Option
	if cfg.Share.Secret != "" {
		signer = share.NewSigner(cfg.Share.Secret, cfg.Share.TokenTTL)
		opts = append(opts, identity.WithShareTokens(signer))
	}
	resolver := identity.NewResolver(prefs, opts...)

	if cfg.Client.UserName != "" {
		if _, err := resolver.SetDisplayName(ctx, cfg.Client.UserName); err != nil {
			return err
		}
	}
	id, err := resolver.Resolve(ctx, cfg.Client.ShareRef)
	if err != nil {
		return err
	}
	if !id.Named() {
		slog.Warn("No display name set; presence is announced once TRIP_USER_NAME is given")
	}

	store := remote.Dial(nil, cfg.Client.ServerURL, id.ParticipantID)
	sess, err := session.Open(ctx, store, id, session.Options{
		TotalDays: cfg.Trip.TotalDays,
		OnChange:  logView,
		Names:     resolver,
	})
	if err != nil {
		return err
	}

	slog.Info("Share this trip", "link", sess.ShareLink(cfg.Share.Origin, cfg.Share.Path))
	if signer != nil {
		token, err := signer.Token(id.DocumentID)
		if err != nil {
			slog.Warn("Failed to sign share token", "error", err)
		} else {
			slog.Info("Signed share token", "token", token)
		}
	}

	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return sess.Close(closeCtx)
}

// logView logs a one-line summary of the document.
func logView(v session.View) {
	for name, err := range v.Errors {
		slog.Warn("Collection out of sync", "collection", name, "error", err)
	}
	slog.Info("Trip updated",
		"trip", v.Info.Name,
		"places", len(v.Places),
		"spent", v.Budget.Total.String(),
		"budget_used_pct", v.Budget.PercentUsed,
		"checklist", v.ChecklistProgress.Done,
		"checklist_total", v.ChecklistProgress.Total,
		"wishlist", v.WishlistProgress.Done,
		"wishlist_total", v.WishlistProgress.Total,
		"online", v.Presence.Online,
		"members", v.Presence.Total,
	)
}
