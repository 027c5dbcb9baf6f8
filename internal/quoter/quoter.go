// Package quoter defines the pricing capability the maker quotes from and a
// registry that selects an implementation by name.
package quoter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/rfqmaker/internal/domain"
)

// ErrUnsupported is returned by a Quoter for a quote direction it cannot price.
var ErrUnsupported = errors.New("quoter: unsupported quote direction")

// Quoter prices swaps.
type Quoter interface {
	Name() string
	// GetOutputAmountQuote prices selling req.InputAmount of req.InputToken.
	GetOutputAmountQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
	// GetInputAmountQuote prices buying req.OutputAmount of req.OutputToken.
	GetInputAmountQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
}

// Config is what a Factory receives.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Factory builds a Quoter from config.
type Factory func(cfg Config) (Quoter, error)

// Registry maps quoter names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in quoters registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(HTTPQuoterName, func(cfg Config) (Quoter, error) {
		return NewHTTPQuoter(cfg)
	})
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the quoter registered under name.
func (r *Registry) New(name string, cfg Config) (Quoter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("quoter: unknown quoter %q (have %v)", name, r.Names())
	}
	return f(cfg)
}

// Names lists the registered quoter names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
