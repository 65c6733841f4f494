package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// OutputConfig selects one output.
type OutputConfig struct {
	// Type is console, file or null.
	Type string `json:"type" yaml:"type"`
	// Path is required for file outputs.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Config declares a logger.
type Config struct {
	Level            string         `json:"level" yaml:"level"`
	Format           string         `json:"format" yaml:"format"`
	Outputs          []OutputConfig `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	RedactKeys       []string       `json:"redact_keys,omitempty" yaml:"redact_keys,omitempty"`
	SampleInitial    int            `json:"sample_initial,omitempty" yaml:"sample_initial,omitempty"`
	SampleThereafter int            `json:"sample_thereafter,omitempty" yaml:"sample_thereafter,omitempty"`
	EnableCaller     bool           `json:"enable_caller,omitempty" yaml:"enable_caller,omitempty"`
}

// ApplyConfig builds a logger from cfg.
func ApplyConfig(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{EnableCaller: cfg.EnableCaller}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{EnableCaller: cfg.EnableCaller}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			if oc.Path == "" {
				return nil, fmt.Errorf("file log output needs a path")
			}
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			return nil, fmt.Errorf("unknown log output %q", oc.Type)
		}
	}

	l := NewLogger(opts...).(*BaseLogger)
	h := newBridgeHandler(l).withRedactions(cfg.RedactKeys).withSampler(cfg.SampleInitial, cfg.SampleThereafter)
	l.slogLogger = slog.New(h)
	return l, nil
}
