// Command markread toggles or reports the read mark of a list item in the
// local store.
//
//	markread [--db file] toggle|status <item> <updated-at> [comments]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gh-presence/internal/config"
	"gh-presence/internal/domain"
	"gh-presence/internal/localstore"
	"gh-presence/internal/readstate"
)

var errUsage = errors.New("usage: markread [--db file] toggle|status <item> <updated-at> [comments]")

func main() {
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

	store, err := localstore.Open(cfg.Local.DB)
	if err != nil {
		logger.Fatal("failed to open local store", zap.String("db", cfg.Local.DB), zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	tracker, err := readstate.NewTracker(store, readstate.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create read tracker", zap.Error(err))
	}

	if err := run(context.Background(), pflag.Args(), tracker, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(ctx context.Context, args []string, tracker *readstate.Tracker, out io.Writer) error {
	if len(args) < 3 || len(args) > 4 {
		return errUsage
	}
	item := strings.TrimSpace(args[1])
	fp := domain.Fingerprint{UpdatedAt: strings.TrimSpace(args[2])}
	if len(args) == 4 {
		fp.Comments = strings.TrimSpace(args[3])
	}

	var read bool
	switch args[0] {
	case "toggle":
		var err error
		if read, err = tracker.Toggle(ctx, item, fp); err != nil {
			return err
		}
	case "status":
		read = tracker.IsRead(ctx, item, fp)
	default:
		return errUsage
	}

	state := "unread"
	if read {
		state = "read"
	}
	_, err := fmt.Fprintf(out, "%s %s\n", item, state)
	return err
}
