// Command vaultctl inspects the baseline store and history archive selected by
// the VAULTCORE_* environment variables.
//
//	vaultctl [-log-level info] [-log-format text] baselines
//	vaultctl history [-item id]
//	vaultctl show <archive key>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"vaultcore/internal/core"
)

var exitFunc = os.Exit

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

var errUsage = errors.New("usage: vaultctl [flags] baselines | history [-item id] | show <key>")

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vaultctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	level := fs.String("log-level", "info", "debug|info|warn|error")
	format := fs.String("log-format", "text", "text|json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logger, err := newLogger(stderr, *level, *format)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		_, _ = fmt.Fprintln(stderr, errUsage)
		return 2
	}

	enc := json.NewEncoder(stdout)
	switch rest[0] {
	case "baselines":
		err = listBaselines(ctx, enc, logger)
	case "history":
		err = listHistory(ctx, rest[1:], enc, logger, stderr)
	case "show":
		if len(rest) != 2 {
			err = errUsage
			break
		}
		err = showRecord(ctx, rest[1], enc)
	default:
		err = errUsage
	}
	if errors.Is(err, errUsage) {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	if err != nil {
		logger.Error("vaultctl failed", "command", rest[0], "error", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q", format)
	}
}

type baselineLine struct {
	ItemID      int64     `json:"item_id"`
	Schema      string    `json:"schema"`
	Fields      int       `json:"fields"`
	CommittedAt time.Time `json:"committed_at"`
}

func listBaselines(ctx context.Context, enc *json.Encoder, logger *slog.Logger) error {
	store, err := core.OpenBaselineStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	baselines, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, b := range baselines {
		line := baselineLine{
			ItemID:      b.ItemID,
			Schema:      b.Snapshot.Schema,
			Fields:      len(b.Snapshot.Values),
			CommittedAt: b.CommittedAt,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	logger.Debug("listed baselines", "count", len(baselines))
	return nil
}

func openArchive(ctx context.Context) (*core.Archive, error) {
	store, err := core.OpenArchive(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("history archive disabled")
	}
	return core.NewArchive(store), nil
}

func listHistory(ctx context.Context, args []string, enc *json.Encoder, logger *slog.Logger, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	item := fs.String("item", "", "only records of this item id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	var itemID int64
	if *item != "" {
		id, err := strconv.ParseInt(*item, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("%w: bad item id %q", errUsage, *item)
		}
		itemID = id
	}
	archive, err := openArchive(ctx)
	if err != nil {
		return err
	}
	infos, err := archive.List(ctx, itemID)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := enc.Encode(info); err != nil {
			return err
		}
	}
	logger.Debug("listed history", "item_id", itemID, "count", len(infos))
	return nil
}

func showRecord(ctx context.Context, key string, enc *json.Encoder) error {
	archive, err := openArchive(ctx)
	if err != nil {
		return err
	}
	rec, err := archive.Read(ctx, key)
	if err != nil {
		return err
	}
	return enc.Encode(rec)
}
