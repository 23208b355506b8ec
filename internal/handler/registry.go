package handler

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Factory builds a handler from the options block of processor.yaml. opts is nil when the block is absent.
type Factory func(opts *yaml.Node) (Handler, error)

type Builtin struct {
	Name string
	New  Factory
}

// Registry is a read-only set of compiled-in handlers keyed by lower-case name.
type Registry struct {
	byName map[string]Factory
}

func NewRegistry(builtins ...Builtin) (Registry, error) {
	byName := make(map[string]Factory, len(builtins))
	for _, b := range builtins {
		name := normalizeName(b.Name)
		if name == "" {
			return Registry{}, fmt.Errorf("handler name must not be empty")
		}
		if b.New == nil {
			return Registry{}, fmt.Errorf("handler %q has no factory", name)
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("duplicate handler %q", name)
		}
		byName[name] = b.New
	}
	return Registry{byName: byName}, nil
}

// DefaultRegistry holds the handlers shipped with the runner.
func DefaultRegistry() Registry {
	reg, err := NewRegistry(
		Builtin{Name: PageTitleName, New: newPageTitle},
		Builtin{Name: OneTableName, New: newOneTable},
		Builtin{Name: ArticleName, New: newArticle},
	)
	if err != nil {
		panic(err)
	}
	return reg
}

func (r Registry) Get(name string) (Factory, bool) {
	if r.byName == nil {
		return nil, false
	}
	f, ok := r.byName[normalizeName(name)]
	return f, ok
}

func (r Registry) Len() int {
	return len(r.byName)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func decodeOptions(opts *yaml.Node, into any) error {
	if opts == nil || opts.Kind == 0 {
		return nil
	}
	if err := opts.Decode(into); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}
