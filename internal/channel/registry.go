package channel

import (
	"fmt"
	"sort"
)

// Registry is an explicitly constructed name→adapter lookup. It is populated
// once during wiring and read-only afterwards; registering two adapters under
// one name is a configuration error.
type Registry struct {
	channels map[string]Channel
}

func NewRegistry(channels ...Channel) (*Registry, error) {
	r := &Registry{channels: make(map[string]Channel, len(channels))}
	for _, c := range channels {
		if err := r.register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(c Channel) error {
	name := c.Name()
	if name == "" {
		return fmt.Errorf("channel adapter has empty name")
	}
	if _, ok := r.channels[name]; ok {
		return fmt.Errorf("channel %q registered twice", name)
	}
	r.channels[name] = c
	return nil
}

// Get resolves an adapter by channel name.
func (r *Registry) Get(name string) (Channel, bool) {
	c, ok := r.channels[name]
	return c, ok
}

// Names lists the registered channel names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
