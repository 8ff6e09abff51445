// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package log wires the process-wide logrus instance shared by every
// component of the node: a prefixed formatter for terminal output and an
// optional rotating file sink.
package log

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	logrus "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the shared logger at startup.
type Options struct {
	Level    string
	FilePath string
	MaxSizeMB int
	MaxBackups int
}

// Setup installs the prefixed formatter and, when FilePath is non-empty,
// fans output out to a rotating file alongside the terminal.
func Setup(opts Options) error {
	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	logrus.SetFormatter(&prefixed.TextFormatter{
		DisableColors:   !isatty.IsTerminal(os.Stdout.Fd()),
		ForceFormatting: true,
	})

	out := io.Writer(colorable.NewColorableStdout())
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxOr(opts.MaxSizeMB, 100),
			MaxBackups: maxOr(opts.MaxBackups, 3),
		}
		out = io.MultiWriter(out, rotator)
	}
	logrus.SetOutput(out)
	return nil
}

func maxOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// WithPrefix returns a logrus entry tagged with the given component prefix,
// mirroring the `logger.WithFields(logger.Fields{"prefix": ...})` idiom used
// throughout the node.
func WithPrefix(prefix string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"prefix": prefix})
}

// Entry copies an existing entry's fields and adds one more, used for the
// per-transaction/per-peer structured logging callers need on a hot path.
func Entry(base *logrus.Entry, key string, val interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for k, v := range base.Data {
		fields[k] = v
	}
	fields[key] = val
	return logrus.WithFields(fields)
}
