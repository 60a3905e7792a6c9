package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger: console output on stderr unless
// jsonOutput is set. An empty level means info.
func Setup(level string, jsonOutput bool) error {
	return setup(os.Stderr, level, jsonOutput)
}

func setup(out io.Writer, level string, jsonOutput bool) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)

	if jsonOutput {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return nil
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	return nil
}
