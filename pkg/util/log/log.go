// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log implements leveled, context-tagged logging.
//
// Every logging function takes a context.Context; the logtags attached to it
// are rendered in front of the message as "[k=v,k2=v2]". Output goes through a
// logrus logger, which can emit plain text or JSON.
package log

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/txnoracle/pkg/util/syncutil"
	"github.com/sirupsen/logrus"
)

// Format names accepted by SetFormat.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var logging struct {
	mu struct {
		syncutil.Mutex
		verbosity int
	}
	logger *logrus.Logger
}

func init() {
	logging.logger = logrus.New()
	logging.logger.SetOutput(OrigStderr)
	logging.logger.SetLevel(logrus.InfoLevel)
	logging.logger.SetFormatter(textFormatter(OrigStderr))
}

// OrigStderr points to the original stderr stream.
var OrigStderr = os.Stderr

// SetOutput redirects log output. Text output is colored only when w is a
// color-capable terminal.
func SetOutput(w io.Writer) {
	logging.logger.SetOutput(w)
	if _, ok := logging.logger.Formatter.(*logrus.TextFormatter); ok {
		logging.logger.SetFormatter(textFormatter(w))
	}
}

// SetFormat selects the output format, FormatText or FormatJSON. Unknown
// names select text.
func SetFormat(format string) {
	if format == FormatJSON {
		logging.logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logging.logger.SetFormatter(textFormatter(logging.logger.Out))
}

// SetVerbosity sets the level up to which V returns true.
func SetVerbosity(level int) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	logging.mu.verbosity = level
	if level > 0 {
		logging.logger.SetLevel(logrus.DebugLevel)
	} else {
		logging.logger.SetLevel(logrus.InfoLevel)
	}
}

// V returns true if the logging verbosity is set to the specified level or
// higher.
func V(level int) bool {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	return level <= logging.mu.verbosity
}

// Infof logs to the INFO severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, logrus.InfoLevel, format, args...)
}

// Warningf logs to the WARNING severity.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, logrus.WarnLevel, format, args...)
}

// Errorf logs to the ERROR severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, logrus.ErrorLevel, format, args...)
}

// Fatalf logs to the ERROR severity and then exits the process, or calls the
// function installed with SetExitFunc.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, logrus.ErrorLevel, format, args...)
	exit(2)
}

// VEventf logs at INFO when the verbosity is at least level, and is a no-op
// otherwise.
func VEventf(ctx context.Context, level int, format string, args ...interface{}) {
	if V(level) {
		logf(ctx, logrus.InfoLevel, format, args...)
	}
}

func logf(ctx context.Context, lvl logrus.Level, format string, args ...interface{}) {
	if !logging.logger.IsLevelEnabled(lvl) {
		return
	}
	logging.logger.Log(lvl, FormatWithContextTags(ctx, format, args...))
}
