package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"

	"gopkg.in/yaml.v3"
)

// PluginSymbol is the exported name looked up in a handler plugin.
const PluginSymbol = "Process"

// Declaration is the content of a site's processor.yaml.
type Declaration struct {
	Handler string    `yaml:"handler"`
	Plugin  string    `yaml:"plugin"`
	Options yaml.Node `yaml:"options"`
}

type Loaded struct {
	Name    string
	Handler Handler
}

type Loader struct {
	registry Registry
	log      *slog.Logger
}

func NewLoader(registry Registry, log *slog.Logger) *Loader {
	return &Loader{registry: registry, log: log}
}

// Load reads the declaration at path and builds its handler. Nothing is cached, every call reads the file again.
// Every failure is a *HandlerLoadError.
func (l *Loader) Load(path string) (*Loaded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &HandlerLoadError{Path: path, Err: err}
	}
	var decl Declaration
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err = dec.Decode(&decl); err != nil {
		return nil, &HandlerLoadError{Path: path, Err: fmt.Errorf("invalid declaration: %w", err)}
	}

	switch {
	case decl.Handler != "" && decl.Plugin != "":
		return nil, &HandlerLoadError{Path: path, Err: errors.New("declare either handler or plugin, not both")}
	case decl.Handler != "":
		factory, ok := l.registry.Get(decl.Handler)
		if !ok {
			return nil, &HandlerLoadError{Path: path, Err: fmt.Errorf("unknown handler %q", decl.Handler)}
		}
		h, err := factory(&decl.Options)
		if err != nil {
			return nil, &HandlerLoadError{Path: path, Err: err}
		}
		l.log.Debug("handler loaded.", slog.String("handler", decl.Handler))
		return &Loaded{Name: normalizeName(decl.Handler), Handler: h}, nil
	case decl.Plugin != "":
		pluginPath := decl.Plugin
		if !filepath.IsAbs(pluginPath) {
			pluginPath = filepath.Join(filepath.Dir(path), pluginPath)
		}
		h, err := openPlugin(pluginPath)
		if err != nil {
			return nil, &HandlerLoadError{Path: path, Err: err}
		}
		l.log.Debug("plugin loaded.", slog.String("plugin", pluginPath))
		return &Loaded{Name: filepath.Base(pluginPath), Handler: h}, nil
	default:
		return nil, &HandlerLoadError{Path: path, Err: errors.New("no handler or plugin declared")}
	}
}

func openPlugin(path string) (Handler, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case func(context.Context, *Request) error:
		return ProcessFunc(fn), nil
	case *ProcessFunc:
		return *fn, nil
	case *Handler:
		return *fn, nil
	default:
		return nil, fmt.Errorf("symbol %s has type %T, want func(context.Context, *handler.Request) error",
			PluginSymbol, sym)
	}
}
