package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"signalscore/internal/models"
)

// Run is one unit of work: score one user for one project/signal pair.
type Run struct {
	UserID    string
	ProjectID string
	Signal    models.SignalStrength
	Config    models.SignalStrengthConfig

	// Force regenerates the smart score even when one already exists for the
	// target day.
	Force bool

	// TestRequestingUser marks the run as a dry run: rows it produces carry
	// the marker, bypass idempotence checks, and never displace production
	// data.
	TestRequestingUser *string
}

// Adapter drives the scoring pipeline for one platform.
type Adapter interface {
	Name() string
	ProcessUser(ctx context.Context, run Run) error
}

// Registry maps platform names to adapters. Populated once at startup; the
// dispatch stays data-driven without any runtime plugin loading.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Name())] = a
}

func (r *Registry) Resolve(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported platform %q (supported: %s)",
			name, strings.Join(r.names(), ", "))
	}
	return a, nil
}

func (r *Registry) names() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
