// Package logx configures glog from the --logging_level flag.
//
// DEBUG and INFO log everything to stderr (DEBUG also enables V(1) and
// V(2) traces). WARNING and above keep stderr quiet below that severity;
// glog still writes its full log files under logDir.
package logx

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Level is a parsed --logging_level value.
type Level struct {
	Name      string
	Verbosity int
	Threshold string
	ToStderr  bool
}

// ParseLevel accepts DEBUG, INFO, WARNING, ERROR, CRITICAL (any case) or
// the numeric levels 10, 20, 30, 40, 50.
func ParseLevel(raw string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(name); err == nil {
		switch {
		case n <= 10:
			name = "DEBUG"
		case n <= 20:
			name = "INFO"
		case n <= 30:
			name = "WARNING"
		case n <= 40:
			name = "ERROR"
		default:
			name = "CRITICAL"
		}
	}
	switch name {
	case "DEBUG":
		return Level{Name: name, Verbosity: 2, Threshold: "INFO", ToStderr: true}, nil
	case "", "INFO":
		return Level{Name: "INFO", Verbosity: 0, Threshold: "INFO", ToStderr: true}, nil
	case "WARN", "WARNING":
		return Level{Name: "WARNING", Threshold: "WARNING"}, nil
	case "ERROR":
		return Level{Name: name, Threshold: "ERROR"}, nil
	case "CRITICAL", "FATAL":
		return Level{Name: "CRITICAL", Threshold: "FATAL"}, nil
	default:
		return Level{}, fmt.Errorf("unknown logging level %q", raw)
	}
}

// Setup applies level to glog's flags. logDir is only used when the level
// does not log everything to stderr.
func Setup(level Level, logDir string) error {
	settings := map[string]string{
		"v":               strconv.Itoa(level.Verbosity),
		"stderrthreshold": level.Threshold,
		"logtostderr":     strconv.FormatBool(level.ToStderr),
	}
	if !level.ToStderr && logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		settings["log_dir"] = logDir
	}
	for name, value := range settings {
		if flag.Lookup(name) == nil {
			continue
		}
		if err := flag.Set(name, value); err != nil {
			return fmt.Errorf("set glog flag %s: %w", name, err)
		}
	}
	return nil
}
