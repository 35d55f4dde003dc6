package modbus

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// StringToLevel maps accepted level names to zerolog levels.
var StringToLevel = map[string]zerolog.Level{
	"DEBUG":   zerolog.DebugLevel,
	"INFO":    zerolog.InfoLevel,
	"WARN":    zerolog.WarnLevel,
	"WARNING": zerolog.WarnLevel,
	"ERROR":   zerolog.ErrorLevel,
	"NONE":    zerolog.Disabled,
}

// ParseLevel parses a level name such as "debug" or "WARNING".
func ParseLevel(levelStr string) (zerolog.Level, error) {
	if level, ok := StringToLevel[strings.ToUpper(strings.TrimSpace(levelStr))]; ok {
		return level, nil
	}
	return zerolog.NoLevel, fmt.Errorf("invalid log level: %s. Available levels: %v", levelStr, getAvailableLevels())
}

func getAvailableLevels() []string {
	levels := make([]string, 0, len(StringToLevel))
	for levelStr := range StringToLevel {
		levels = append(levels, levelStr)
	}
	sort.Strings(levels)
	return levels
}

// NewLogger creates a leveled logger writing to output, stdout when nil.
// component is attached to every entry.
func NewLogger(output io.Writer, levelStr string, component string) (zerolog.Logger, error) {
	if output == nil {
		output = os.Stdout
	}
	level, err := ParseLevel(levelStr)
	if err != nil {
		return zerolog.Nop(), err
	}
	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
	return logger, nil
}

// NewConsoleLogger is NewLogger with human readable output for terminals.
func NewConsoleLogger(output io.Writer, levelStr string, component string) (zerolog.Logger, error) {
	if output == nil {
		output = os.Stderr
	}
	return NewLogger(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}, levelStr, component)
}
