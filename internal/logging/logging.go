/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process. In development the output is a
// human-readable console stream at debug level; everywhere else it is JSON
// at info level. A non-empty level overrides the environment default.
func Setup(environment, level string) zerolog.Logger {
	return SetupWithWriter(environment, level, nil)
}

// SetupWithWriter configures zerolog with an additional writer (e.g., for a
// log buffer capturing recent entries).
func SetupWithWriter(environment, level string, additionalWriter io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logLevel := zerolog.InfoLevel
	if environment == "development" {
		logLevel = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			logLevel = parsed
		}
	}

	var writer io.Writer = os.Stdout
	if environment == "development" {
		writer = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	if additionalWriter != nil {
		writer = zerolog.MultiLevelWriter(writer, additionalWriter)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(logLevel)
	log.Logger = logger
	return logger
}
