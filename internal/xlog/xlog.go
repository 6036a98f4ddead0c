// Package xlog is the simulator's leveled operational logger, modeled
// directly on quic-go's internal/utils log level scheme: an env-var
// controlled verbosity plus Debugf/Infof/Errorf helpers over the
// standard library's log package. It exists alongside the richer
// logging.RunTracer for structured per-run events; xlog is for the
// things a human tails in a terminal (config problems, run timeouts),
// not for the per-segment event stream.
package xlog

import (
	"log"
	"os"
	"strconv"
)

type Level uint8

const (
	envVar = "RDTSIM_LOG_LEVEL"

	LevelNothing Level = 0
	LevelError   Level = 1
	LevelInfo    Level = 2
	LevelDebug   Level = 3
)

var level = levelFromEnv()

func levelFromEnv() Level {
	v := os.Getenv(envVar)
	if v == "" {
		return LevelNothing
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > int(LevelDebug) {
		return LevelNothing
	}
	return Level(n)
}

// SetLevel overrides the log level programmatically, e.g. from the CLI's
// --verbose flag.
func SetLevel(l Level) { level = l }

func Debugf(format string, args ...any) {
	if level >= LevelDebug {
		log.Printf(format, args...)
	}
}

func Infof(format string, args ...any) {
	if level >= LevelInfo {
		log.Printf(format, args...)
	}
}

func Errorf(format string, args ...any) {
	if level >= LevelError {
		log.Printf(format, args...)
	}
}
