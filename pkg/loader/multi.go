package loader

import (
	"errors"
	"log/slog"
	"sort"
)

// MultiLoader tries loaders in order. A failing loader is logged and
// skipped; only when no loader has the template is ErrNotFound returned.
type MultiLoader struct {
	loaders []Loader
	logger  *slog.Logger
}

// NewMultiLoader creates a loader over the given loaders.
func NewMultiLoader(logger *slog.Logger, loaders ...Loader) *MultiLoader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MultiLoader{loaders: loaders, logger: logger}
}

func (m *MultiLoader) Load(name, encoding string) (*Resource, error) {
	for _, l := range m.loaders {
		r, err := l.Load(name, encoding)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("loader failed", "template", name, "error", err)
		}
	}
	return nil, notFound(name)
}

func (m *MultiLoader) List() ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, l := range m.loaders {
		list, err := l.List()
		if err != nil {
			m.logger.Warn("list failed", "error", err)
			continue
		}
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
