package obs

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var bootID atomic.Value // string

// Init configures the global zerolog logger for one process. Every line carries
// boot=<service>#<start time> so restarts are easy to tell apart in aggregated logs.
//
// LOG_LEVEL selects the level (default info). LOG_FORMAT=console forces the human
// readable writer; LOG_FORMAT=json forces JSON. Otherwise console is used on a tty.
func Init(service string) {
	id := service + "#" + time.Now().Format("20060102_150405.000000")
	bootID.Store(id)

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(os.Getenv("LOG_LEVEL")))

	log.Logger = zerolog.New(writer(os.Stderr)).
		With().
		Timestamp().
		Caller().
		Str("boot", id).
		Logger()

	cwd, _ := os.Getwd()
	log.Info().Int("pid", os.Getpid()).Str("root", cwd).Msg("[boot] started")
}

// BootID returns the id set by Init, or "" before Init ran.
func BootID() string {
	id, _ := bootID.Load().(string)
	return id
}

// Logger returns a child of the global logger tagged with component.
func Logger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func writer(f *os.File) io.Writer {
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		return f
	case "console":
		return zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05.000000"}
	}
	if isatty.IsTerminal(f.Fd()) {
		return zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05.000000"}
	}
	return f
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
