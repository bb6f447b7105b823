// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blecap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ZaparooProject/go-blecap/internal/syncutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

var (
	logger       = newLogger()
	consoleOut   io.Writer = os.Stderr
	sessionOut   io.Writer
	debugEnabled bool
	logMu        syncutil.Mutex
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetFormatter(&lineFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.AddHook(&writer.Hook{Writer: os.Stderr, LogLevels: levelsUpTo(logrus.InfoLevel)})
	return l
}

// lineFormatter renders "15:04:05.000 LEVEL: message key=value".
type lineFormatter struct{}

func (*lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	_, _ = fmt.Fprintf(&b, "%s %s: %s",
		entry.Time.Format("15:04:05.000"), levelTag(entry.Level), entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelTag(level logrus.Level) string {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return "ERROR"
	case logrus.WarnLevel:
		return "WARN"
	case logrus.InfoLevel:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func levelsUpTo(maxLevel logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= maxLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

// configureLogger rebuilds the hooks after the console or session output
// changes. The session log receives every level; the console receives Info
// and above unless debug is enabled. Must be called with logMu held.
func configureLogger() {
	hooks := make(logrus.LevelHooks)
	consoleMax := logrus.InfoLevel
	if debugEnabled {
		consoleMax = logrus.DebugLevel
	}
	level := logrus.PanicLevel
	if consoleOut != nil {
		hooks.Add(&writer.Hook{Writer: consoleOut, LogLevels: levelsUpTo(consoleMax)})
		level = consoleMax
	}
	if sessionOut != nil {
		hooks.Add(&writer.Hook{Writer: sessionOut, LogLevels: levelsUpTo(logrus.DebugLevel)})
		level = logrus.DebugLevel
	}
	logger.ReplaceHooks(hooks)
	logger.SetLevel(level)
}

// Logger returns the package logger so components can attach fields.
func Logger() *logrus.Logger {
	return logger
}

// DebugActive reports whether a debug entry would be written anywhere.
// Hot paths check it before building log arguments.
func DebugActive() bool {
	return logger.IsLevelEnabled(logrus.DebugLevel)
}

// Debugf writes a debug entry. It always reaches the session log (if
// initialized) and reaches the console only when debug mode is enabled.
func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Debugln writes a debug entry built like fmt.Sprint.
func Debugln(args ...any) {
	logger.Debugln(args...)
}

// Infof writes an informational entry.
func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

// Warnf writes a warning.
func Warnf(format string, args ...any) {
	logger.Warnf(format, args...)
}

// Errorf writes an error entry. It never exits the process.
func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}

// SetDebugEnabled allows programmatic control of console debug output.
func SetDebugEnabled(enabled bool) {
	logMu.Lock()
	defer logMu.Unlock()
	debugEnabled = enabled
	configureLogger()
}

// SetConsoleOutput redirects console log output. A nil writer silences the
// console while keeping the session log.
func SetConsoleOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	consoleOut = w
	configureLogger()
}
