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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Session log rotation limits.
const (
	sessionLogMaxSizeMB  = 10
	sessionLogMaxBackups = 3
)

var (
	sessionLogFile *lumberjack.Logger
	sessionLogPath string
)

// InitSessionLog starts a session log in dir (the current directory when
// empty). Every log level is written to it regardless of SetDebugEnabled.
// Returns the log file path for display to the user.
func InitSessionLog(dir string) (string, error) {
	filename := fmt.Sprintf("blecap_%s.log", time.Now().Format("20060102_150405"))
	if dir != "" {
		filename = filepath.Join(dir, filename)
	}

	lj := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    sessionLogMaxSizeMB,
		MaxBackups: sessionLogMaxBackups,
	}

	// lumberjack opens lazily; the header write surfaces path errors now.
	if err := writeSessionHeader(lj); err != nil {
		_ = lj.Close()
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	logMu.Lock()
	if sessionLogFile != nil {
		_ = sessionLogFile.Close()
	}
	sessionLogFile = lj
	sessionLogPath = filename
	sessionOut = lj
	configureLogger()
	logMu.Unlock()

	return filename, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	logMu.Lock()
	defer logMu.Unlock()

	if sessionLogFile == nil {
		return nil
	}

	timestamp := time.Now().Format("15:04:05.000")
	_, _ = fmt.Fprintf(sessionLogFile, "\n%s === Session ended ===\n", timestamp)

	err := sessionLogFile.Close()
	sessionLogFile = nil
	sessionLogPath = ""
	sessionOut = nil
	configureLogger()
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	return sessionLogPath
}

func writeSessionHeader(w io.Writer) error {
	var sb strings.Builder
	_, _ = sb.WriteString("=== BLE Capture Session Log ===\n")
	_, _ = fmt.Fprintf(&sb, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&sb, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(&sb, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&sb, "Go Version: %s\n", runtime.Version())
	if exe, err := os.Executable(); err == nil {
		_, _ = fmt.Fprintf(&sb, "Executable: %s\n", exe)
	}
	_, _ = fmt.Fprintf(&sb, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = sb.WriteString("===============================\n\n")

	_, err := io.WriteString(w, sb.String())
	return err //nolint:wrapcheck // wrapped by caller
}
