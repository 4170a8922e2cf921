package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	Configure(os.Getenv("ENVIRONMENT"), os.Stdout)
}

// Configure rebuilds the process logger. Development gets a human readable
// console writer and debug output; every other environment logs JSON.
func Configure(environment string, out io.Writer) {
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func Info(format string, v ...interface{}) {
	log.Info().Msg(fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	log.Error().Msg(fmt.Sprintf(format, v...))
}

func Debug(format string, v ...interface{}) {
	log.Debug().Msg(fmt.Sprintf(format, v...))
}

func Warn(format string, v ...interface{}) {
	log.Warn().Msg(fmt.Sprintf(format, v...))
}

// With returns a child logger tagged with a component name, for code that
// wants structured fields instead of printf formatting.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
