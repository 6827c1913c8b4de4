package log

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Config for the logger.
type Config struct {
	Level      Level `help:"Log level." default:"info" env:"LOG_LEVEL"`
	JSON       bool  `help:"Log in JSON format." env:"LOG_JSON"`
	Timestamps bool  `help:"Include timestamps in logs." env:"LOG_TIMESTAMPS"`
	Color      bool  `help:"Colour log levels when writing to a terminal." default:"true" negatable:"" env:"LOG_COLOR"`
}

// Configure returns a new logger based on the config.
func Configure(w io.Writer, cfg Config) *Logger {
	var sink Sink
	if cfg.JSON {
		sink = newJSONSink(w)
	} else {
		sink = newPlainSink(w, cfg.Timestamps, cfg.Color && isTerminal(w))
	}
	return New(cfg.Level, sink)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
