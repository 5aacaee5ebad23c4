package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/odrift/odrift/pkg/rpc"
)

// Loader parses desired-state documents, dispatching by file extension:
// .yaml/.yml, .cue, and .star are supported.
type Loader struct {
	logger   zerolog.Logger
	cue      *cueParser
	starlark *starlarkEvaluator
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger.With().Str("component", "state-loader").Logger()
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		logger:   zerolog.Nop(),
		cue:      newCUEParser(),
		starlark: newStarlarkEvaluator(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses every source and merges the results. Sources may be files or
// directories; directories are walked non-recursively for supported
// extensions.
func (l *Loader) Load(sources ...string) (*State, error) {
	if len(sources) == 0 {
		return nil, rpc.NewInvalidInputError("no state sources provided")
	}

	var states []*State
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, rpc.NewInvalidInputError(fmt.Sprintf("cannot read state source %s: %v", source, err))
		}
		if info.IsDir() {
			expanded, err := expandDir(source)
			if err != nil {
				return nil, err
			}
			for _, path := range expanded {
				st, err := l.loadFile(path)
				if err != nil {
					return nil, err
				}
				states = append(states, st)
			}
			continue
		}
		st, err := l.loadFile(source)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}

	if len(states) == 0 {
		return nil, rpc.NewInvalidInputError("state sources contain no loadable documents")
	}

	merged, err := Merge(states...)
	if err != nil {
		return nil, err
	}
	l.logger.Debug().
		Strs("sources", merged.Sources).
		Int("models", len(merged.Models)).
		Msg("desired state loaded")
	return merged, nil
}

func (l *Loader) loadFile(path string) (*State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("cannot read %s: %v", path, err))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.loadYAML(path, raw)
	case ".cue":
		return l.cue.parse(path, raw)
	case ".star":
		return l.starlark.evaluate(path, raw)
	default:
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("unsupported state file extension %q", filepath.Ext(path)))
	}
}

func (l *Loader) loadYAML(path string, raw []byte) (*State, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: malformed YAML: %v", path, err))
	}
	return fromDocument(path, doc)
}

func expandDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("cannot list %s: %v", dir, err))
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".cue", ".star":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}
