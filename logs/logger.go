// Package logs builds the process logger: a text handler on the terminal,
// an optional JSON log file and the systemd journal when running as a
// service, fanned out with slog-multi.
package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options selects the handlers of a logger.
type Options struct {
	// Level is one of debug, info, warn or error.
	Level string
	// Terminal receives human-readable records. Nil disables it.
	Terminal io.Writer
	// File, when set, receives JSON records (appended).
	File string
	// Journal sends records to the systemd journal. The terminal handler is
	// dropped when the journal is available.
	Journal bool
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// New builds a logger from opts. The returned close function releases the
// log file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	level.Set(lvl)

	closer := func() error { return nil }
	var handlers []slog.Handler

	// systemd journal
	var journalHandler slog.Handler
	if opts.Journal {
		h, err := slogjournal.NewHandler(journalOptions(level))
		if err == nil {
			journalHandler = h
			handlers = append(handlers, h)
		} else if opts.Terminal != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "new systemd journal handler", 0)
			record.Add("error", err)
			_ = slog.NewTextHandler(opts.Terminal, nil).Handle(context.Background(), record)
		}
	}

	// local
	if opts.Terminal != nil && journalHandler == nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Terminal, &slog.HandlerOptions{
			Level: level,
		}))
	}

	// file
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closer = f.Close
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level: level,
		}))
	}

	if len(handlers) == 0 {
		return slog.New(slog.DiscardHandler), closer, nil
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// journalOptions filters at level like the other handlers and maps keys to
// the journal's field syntax.
func journalOptions(level slog.Leveler) *slogjournal.Options {
	return &slogjournal.Options{
		Level: level,
		ReplaceGroup: func(key string) string {
			return toJournalKey(key)
		},
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = toJournalKey(a.Key)
			return a
		},
	}
}

// UnderSystemd reports whether the process runs as a systemd service with
// its output connected to the journal.
func UnderSystemd() bool {
	if os.Getenv("JOURNAL_STREAM") != "" {
		return true
	}
	cgroupPath, err := getCgroupPath()
	if err != nil {
		return false
	}
	return strings.HasSuffix(path.Dir(cgroupPath), ".service")
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	str = strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' ||
			r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
	return str
}

func getCgroupPath() (string, error) {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	parts := strings.Split(string(content), ":")
	if len(parts) >= 3 {
		return strings.TrimSpace(parts[2]), nil
	}
	return "", nil
}
