// Package logging builds the zap loggers used across qfactor.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Debug  bool
	Format string // "console" or "json"
	File   string // rotating log file; empty logs to Stderr
	Stderr io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger and a closer for its sink. Results go to stdout, so
// logs never do.
func New(opts Options) (*zap.Logger, io.Closer, error) {
	level := zap.InfoLevel
	encCfg := zap.NewProductionEncoderConfig()
	if opts.Debug {
		level = zap.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)

	w := opts.Stderr
	if w == nil {
		w = os.Stderr
	}

	var enc zapcore.Encoder
	switch opts.Format {
	case "", "console":
		if opts.File == "" && isTerminal(w) {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, nil, errors.Errorf("create logger: unknown format %q", opts.Format)
	}

	var (
		ws     zapcore.WriteSyncer
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "create logger")
		}
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes per file before rotation
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		ws, closer = zapcore.AddSync(rot), rot
	} else {
		ws = zapcore.Lock(zapcore.AddSync(w))
	}

	core := zapcore.NewCore(enc, ws, level)
	zopts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if opts.Debug {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(core, zopts...), closer, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
