// Command watch keeps a presence session alive for one user and reports who
// else is on the same issue or pull request.
//
// Each stdin line is either a page URL (navigation), "typing" (unsent text in
// the comment box) or "idle" (the comment box was emptied).
package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gh-presence/internal/bootstrap"
	"gh-presence/internal/config"
	"gh-presence/internal/domain"
	"gh-presence/internal/locator"
	"gh-presence/internal/presence"
)

const shutdownTimeout = 10 * time.Second

type driver interface {
	Navigate(path string)
	Input(hasUnsentText bool)
}

func main() {
	user := pflag.String("user", "", "GitHub login (defaults to the #user fragment of --url)")
	avatar := pflag.String("avatar", "", "Avatar URL shown to peers")
	pageURL := pflag.String("url", "", "Page the session starts on")

	logger := config.NewBootstrapLogger()
	cfg, err := config.Load(pflag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	leveled, err := config.NewLogger(cfg.Level)
	if err != nil {
		logger.Fatal("failed to build logger", zap.String("level", cfg.Level), zap.Error(err))
	}
	logger = leveled
	defer func() { _ = logger.Sync() }()

	path, fragUser, err := locator.ParseURL(*pageURL)
	if err != nil {
		logger.Fatal("invalid --url", zap.Error(err))
	}
	if *user == "" {
		*user = fragUser
	}
	if *user == "" {
		logger.Fatal("no user: pass --user or a #user fragment in --url")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	remote, err := bootstrap.NewRemote(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create presence store", zap.Error(err))
	}
	defer func() { _ = remote.Close() }()

	sess, err := presence.StartSession(ctx, presence.SessionConfig{
		Store:    remote.Store,
		Settings: remote.Settings,
		Identity: domain.Identity{User: *user, Avatar: *avatar},
		Path:     path,
		Debounce: cfg.Session.Debounce,
		OnPeers:  reportPeers(logger),
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to start presence session", zap.Error(err))
	}
	logger.Info("presence session started",
		zap.String("user", *user),
		zap.String("session_id", sess.Synchronizer().SessionID()),
		zap.String("path", path),
	)

	go func() {
		if err := readEvents(ctx, os.Stdin, sess, logger); err != nil {
			logger.Warn("stdin closed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	sess.Close()
	select {
	case <-sess.Done():
		logger.Info("presence session cleared")
	case <-time.After(shutdownTimeout):
		logger.Warn("presence clear timed out")
	}
}

// readEvents feeds stdin lines to d until in is exhausted or ctx ends.
func readEvents(ctx context.Context, in io.Reader, d driver, logger *zap.Logger) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
		case "typing":
			d.Input(true)
		case "idle":
			d.Input(false)
		default:
			path, _, err := locator.ParseURL(line)
			if err != nil {
				logger.Warn("ignoring unparseable url", zap.String("line", line), zap.Error(err))
				continue
			}
			d.Navigate(path)
		}
	}
	return sc.Err()
}

func reportPeers(logger *zap.Logger) func(presence.Peers) {
	return func(p presence.Peers) {
		reading, writing := presence.Describe(p)
		logger.Info("peers",
			zap.String("reading", reading),
			zap.String("writing", writing),
		)
	}
}
