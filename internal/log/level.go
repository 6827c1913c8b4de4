package log

import (
	"fmt"
	"strings"
)

// Level of an entry. Gaps leave room for finer levels.
type Level int

const (
	// Default picks Info.
	Default Level = 0
	Trace   Level = 1
	Debug   Level = 5
	Info    Level = 9
	Warn    Level = 13
	Error   Level = 17
)

// ParseLevel parses a level name, accepting "warning" for Warn.
func ParseLevel(input string) (Level, error) {
	var level Level
	err := level.UnmarshalText([]byte(input))
	return level, err
}

var levelNames = map[Level]string{
	Default: "default",
	Trace:   "trace",
	Debug:   "debug",
	Info:    "info",
	Warn:    "warn",
	Error:   "error",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	needle := strings.ToLower(strings.TrimSpace(string(text)))
	if needle == "warning" {
		needle = "warn"
	}
	for level, name := range levelNames {
		if name == needle {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("%q is not a valid log level", string(text))
}
