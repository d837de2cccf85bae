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

package nfctag

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// debugEnabled controls whether debug output reaches the console.
// It can be set via environment variables or SetDebugEnabled.
var debugEnabled atomic.Bool

// logger is the package logger. Components derive children from it with
// With().Str("component", ...).
var logger atomic.Pointer[zerolog.Logger]

func init() {
	if os.Getenv("NFCTAG_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
	l := zerolog.New(consoleWriter()).With().Timestamp().Logger()
	logger.Store(&l)
}

// consoleWriter writes to stderr when debug is enabled and discards otherwise.
// Session log output is teed in regardless of the debug flag.
func consoleWriter() io.Writer {
	return levelWriter{}
}

type levelWriter struct{}

func (levelWriter) Write(p []byte) (int, error) {
	if w := sessionWriter(); w != nil {
		_, _ = w.Write(p)
	}
	if debugEnabled.Load() {
		return os.Stderr.Write(p)
	}
	return len(p), nil
}

// SetLogger replaces the package logger. Applications that already run a
// zerolog logger pass it here so tag events share their sink.
func SetLogger(l zerolog.Logger) {
	logger.Store(&l)
}

// Logger returns the package logger.
func Logger() *zerolog.Logger {
	return logger.Load()
}

// componentLogger returns a child logger tagged with the component name.
func componentLogger(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Debugf logs a formatted debug message.
// Always written to the session log file (if initialized).
// Only printed to the console when debug mode is enabled.
func Debugf(format string, args ...any) {
	Logger().Debug().Msg(fmt.Sprintf(format, args...))
}

// Debugln logs its arguments as a debug message.
func Debugln(args ...any) {
	Logger().Debug().Msg(fmt.Sprint(args...))
}

// SetDebugEnabled allows programmatic control of debug logging
// Useful for testing or application-controlled debug modes
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}
