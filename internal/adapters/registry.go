package adapters

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the configured tool adapters. It must be created with
// NewRegistry and passed explicitly to the components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Tool]Adapter
	order    []Tool
}

// NewRegistry creates a registry holding adapters, in order.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: map[Tool]Adapter{}}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter is nil")
	}
	tool := normalizeTool(adapter.Tool().String())
	if tool == "" {
		return errors.New("tool is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[tool]; exists {
		return fmt.Errorf("tool already registered: %s", tool)
	}
	r.adapters[tool] = adapter
	r.order = append(r.order, tool)
	return nil
}

// Get returns the adapter for tool.
func (r *Registry) Get(tool Tool) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[normalizeTool(tool.String())]
	return a, ok
}

// List returns all adapters in registration order.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Adapter, 0, len(r.order))
	for _, t := range r.order {
		items = append(items, r.adapters[t])
	}
	return items
}

// Tools returns the registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Tool, 0, len(r.adapters))
	for t := range r.adapters {
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

// ParseTool validates and normalizes raw into a registered tool.
func (r *Registry) ParseTool(raw string) (Tool, error) {
	t := normalizeTool(raw)
	if t == "" {
		return "", fmt.Errorf("unsupported tool: %s", raw)
	}
	if _, ok := r.Get(t); !ok {
		return "", fmt.Errorf("unsupported tool: %s", raw)
	}
	return t, nil
}

func normalizeTool(raw string) Tool {
	return Tool(strings.ToLower(strings.TrimSpace(raw)))
}
