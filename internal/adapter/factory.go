package adapter

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/moolen/insight/internal/llm"
)

// ModelSource resolves named models from the `models` config section.
type ModelSource interface {
	Model(ctx context.Context, name string) (llm.Provider, error)
}

// Deps are the shared services a factory may use.
type Deps struct {
	Models     ModelSource
	HTTPClient *http.Client
}

// Factory creates an instance from its `config` map.
type Factory func(name string, cfg map[string]interface{}, deps Deps) (Instance, error)

// FactoryRegistry maps instance types to factories. Backend packages register
// themselves from init:
//
//	func init() {
//		if err := adapter.RegisterFactory("metrics", NewInstance); err != nil {
//			logger.Warn("Failed to register metrics factory: %v", err)
//		}
//	}
type FactoryRegistry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var defaultFactories = NewFactoryRegistry()

// NewFactoryRegistry creates an empty factory registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Register adds a factory. Empty and duplicate types are rejected.
func (r *FactoryRegistry) Register(instanceType string, factory Factory) error {
	if instanceType == "" {
		return fmt.Errorf("adapter type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for %q cannot be nil", instanceType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[instanceType]; exists {
		return fmt.Errorf("adapter type %q is already registered", instanceType)
	}
	r.factories[instanceType] = factory
	return nil
}

// Get returns the factory for instanceType.
func (r *FactoryRegistry) Get(instanceType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[instanceType]
	return f, ok
}

// List returns the registered types, sorted.
func (r *FactoryRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// RegisterFactory registers with the default registry.
func RegisterFactory(instanceType string, factory Factory) error {
	return defaultFactories.Register(instanceType, factory)
}

// GetFactory looks up the default registry.
func GetFactory(instanceType string) (Factory, bool) {
	return defaultFactories.Get(instanceType)
}

// ListFactories lists the default registry.
func ListFactories() []string {
	return defaultFactories.List()
}

// DefaultFactories returns the registry backend packages register into.
func DefaultFactories() *FactoryRegistry {
	return defaultFactories
}

// DecodeConfig decodes an instance `config` map into out, a pointer to a
// struct with yaml tags. Embedded structs are flattened, durations accept
// "10s" strings and unknown keys are errors.
func DecodeConfig(in map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Squash:           true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("invalid adapter config: %w", err)
	}
	return nil
}

// DefaultHTTPClient is used by backends when Deps.HTTPClient is nil.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
