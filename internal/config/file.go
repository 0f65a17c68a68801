package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SchemaVersion is the only config schema this build understands.
const SchemaVersion = "v1"

// File is the router configuration file.
//
// Example:
//
//	schema_version: v1
//	router:
//	  capabilities: [metrics, trends, creative]
//	  request_timeout: 20s
//	  query_timeout: 45s
//	classifier:
//	  model: default
//	  keywords:
//	    trends: [trend, sentiment, เทรนด์]
//	models:
//	  default: {provider: gemini, model: gemini-2.5-flash}
//	adapters:
//	  instances:
//	    - name: internal-metrics
//	      type: metrics
//	      tag: metrics
//	      enabled: true
//	      config:
//	        executor: toolbox
//	        url: http://127.0.0.1:5000/mcp
type File struct {
	SchemaVersion string                   `yaml:"schema_version"`
	Router        RouterSettings           `yaml:"router"`
	Classifier    ClassifierSettings       `yaml:"classifier"`
	Models        map[string]ModelSettings `yaml:"models"`
	Adapters      AdapterSettings          `yaml:"adapters"`
}

// RouterSettings controls dispatch and synthesis.
type RouterSettings struct {
	// Capabilities is the enabled subset of the tag vocabulary.
	// Every entry needs exactly one enabled adapter instance.
	Capabilities []string `yaml:"capabilities"`

	// RequestTimeout bounds a single capability call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// QueryTimeout bounds the whole query; pending calls are cancelled when it expires.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// MaxConcurrency caps concurrent capability calls per query.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Commentary is "none" or "model".
	Commentary string `yaml:"commentary"`

	// CommentaryModel names an entry of Models, used when Commentary is "model".
	CommentaryModel string `yaml:"commentary_model,omitempty"`

	// DefaultWindowDays is the data window applied when a query names none.
	DefaultWindowDays int `yaml:"default_window_days"`
}

// ClassifierSettings controls intent classification.
type ClassifierSettings struct {
	// Keywords are deterministic overrides per tag, matched case-insensitively.
	Keywords map[string][]string `yaml:"keywords"`

	// Model names an entry of Models used when no keyword matches. Empty disables it.
	Model string `yaml:"model,omitempty"`

	// CacheSize is the number of memoized model classifications.
	CacheSize int `yaml:"cache_size"`
}

// ModelSettings configures one language model provider.
type ModelSettings struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// AdapterSettings declares backend adapter instances and their lifecycle.
type AdapterSettings struct {
	// MinVersion rejects adapter implementations older than this semantic version.
	MinVersion string `yaml:"min_version,omitempty"`

	// HealthInterval is how often degraded instances are probed and restarted.
	HealthInterval time.Duration `yaml:"health_interval"`

	// ShutdownTimeout bounds each instance's Stop.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Instances []InstanceConfig `yaml:"instances"`
}

// InstanceConfig is a single adapter instance.
type InstanceConfig struct {
	// Name is unique across all instances.
	Name string `yaml:"name"`

	// Type selects the backend factory (metrics, search-trends, grounded-trends, creative).
	Type string `yaml:"type"`

	// Tag is the capability the instance answers.
	Tag string `yaml:"tag"`

	// Enabled instances are started; disabled ones are skipped.
	Enabled bool `yaml:"enabled"`

	// Config is interpreted by the backend type.
	Config map[string]interface{} `yaml:"config"`
}

// Validate checks structure. Capability names are checked by the router at startup.
func (f *File) Validate() error {
	if f.SchemaVersion != SchemaVersion {
		return NewConfigError(fmt.Sprintf("unsupported schema_version: %q (expected %q)", f.SchemaVersion, SchemaVersion))
	}

	r := f.Router
	if r.RequestTimeout < 0 || r.QueryTimeout < 0 {
		return NewConfigError("router timeouts must not be negative")
	}
	if r.QueryTimeout > 0 && r.RequestTimeout > r.QueryTimeout {
		return NewConfigError(fmt.Sprintf("router.request_timeout (%s) must not exceed router.query_timeout (%s)", r.RequestTimeout, r.QueryTimeout))
	}
	if r.MaxConcurrency < 0 {
		return NewConfigError("router.max_concurrency must not be negative")
	}
	switch r.Commentary {
	case "", "none":
	case "model":
		if _, ok := f.Models[r.CommentaryModel]; !ok {
			return NewConfigError(fmt.Sprintf("router.commentary_model %q is not defined under models", r.CommentaryModel))
		}
	default:
		return NewConfigError(fmt.Sprintf("router.commentary must be none or model, got %q", r.Commentary))
	}

	if m := f.Classifier.Model; m != "" {
		if _, ok := f.Models[m]; !ok {
			return NewConfigError(fmt.Sprintf("classifier.model %q is not defined under models", m))
		}
	}
	for name, m := range f.Models {
		if m.Provider == "" {
			return NewConfigError(fmt.Sprintf("models.%s: provider is required", name))
		}
	}

	seen := make(map[string]bool)
	for i, inst := range f.Adapters.Instances {
		if inst.Name == "" {
			return NewConfigError(fmt.Sprintf("adapters.instances[%d]: name is required", i))
		}
		if inst.Type == "" {
			return NewConfigError(fmt.Sprintf("adapters.instances[%d] (%s): type is required", i, inst.Name))
		}
		if inst.Tag == "" {
			return NewConfigError(fmt.Sprintf("adapters.instances[%d] (%s): tag is required", i, inst.Name))
		}
		if seen[inst.Name] {
			return NewConfigError(fmt.Sprintf("adapters.instances[%d]: duplicate instance name %q", i, inst.Name))
		}
		seen[inst.Name] = true
	}
	return nil
}

// EnabledInstances returns the enabled instances sorted by name.
func (f *File) EnabledInstances() []InstanceConfig {
	var out []InstanceConfig
	for _, inst := range f.Adapters.Instances {
		if inst.Enabled {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Model returns the named model settings.
func (f *File) Model(name string) (ModelSettings, bool) {
	m, ok := f.Models[name]
	return m, ok
}

// applyDefaults fills zero values after unmarshalling.
func (f *File) applyDefaults() {
	d := Defaults()
	if len(f.Router.Capabilities) == 0 {
		f.Router.Capabilities = d.Router.Capabilities
	}
	if f.Router.RequestTimeout == 0 {
		f.Router.RequestTimeout = d.Router.RequestTimeout
	}
	if f.Router.QueryTimeout == 0 {
		f.Router.QueryTimeout = d.Router.QueryTimeout
	}
	if f.Router.MaxConcurrency == 0 {
		f.Router.MaxConcurrency = d.Router.MaxConcurrency
	}
	if f.Router.Commentary == "" {
		f.Router.Commentary = d.Router.Commentary
	}
	if f.Router.DefaultWindowDays == 0 {
		f.Router.DefaultWindowDays = d.Router.DefaultWindowDays
	}
	if f.Classifier.Keywords == nil {
		f.Classifier.Keywords = d.Classifier.Keywords
	}
	if f.Classifier.CacheSize == 0 {
		f.Classifier.CacheSize = d.Classifier.CacheSize
	}
	if f.Adapters.HealthInterval == 0 {
		f.Adapters.HealthInterval = d.Adapters.HealthInterval
	}
	if f.Adapters.ShutdownTimeout == 0 {
		f.Adapters.ShutdownTimeout = d.Adapters.ShutdownTimeout
	}
	for i := range f.Adapters.Instances {
		f.Adapters.Instances[i].Tag = strings.ToLower(strings.TrimSpace(f.Adapters.Instances[i].Tag))
		if f.Adapters.Instances[i].Config == nil {
			f.Adapters.Instances[i].Config = map[string]interface{}{}
		}
	}
}

// Defaults returns the configuration written by `insight init`.
func Defaults() *File {
	return &File{
		SchemaVersion: SchemaVersion,
		Router: RouterSettings{
			Capabilities:      []string{"metrics", "trends", "creative"},
			RequestTimeout:    20 * time.Second,
			QueryTimeout:      45 * time.Second,
			MaxConcurrency:    4,
			Commentary:        "none",
			DefaultWindowDays: 30,
		},
		Classifier: ClassifierSettings{
			Keywords: map[string][]string{
				"metrics": {
					"roas", "ctr", "cpc", "cvr", "conversion", "spend", "impression", "click",
					"performance", "budget", "campaign status",
					"ยอดขาย", "ผลลัพธ์", "ประสิทธิภาพ", "งบ",
				},
				"trends": {
					"trend", "trending", "sentiment", "social", "viral", "buzz", "pantip", "tiktok",
					"เทรนด์", "กระแส", "โซเชียล", "ไวรัล", "ล่าสุด",
				},
				"creative": {
					"creative", "image", "banner", "visual", "ad copy", "headline", "thumbnail",
					"ครีเอทีฟ", "รูปภาพ", "แบนเนอร์",
				},
			},
			CacheSize: 512,
		},
		Models: map[string]ModelSettings{
			"default": {Provider: "gemini", Model: "gemini-2.5-flash"},
		},
		Adapters: AdapterSettings{
			MinVersion:      "1.0.0",
			HealthInterval:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Instances: []InstanceConfig{
				{
					Name:    "internal-metrics",
					Type:    "metrics",
					Tag:     "metrics",
					Enabled: true,
					Config: map[string]interface{}{
						"executor": "toolbox",
						"url":      "http://127.0.0.1:5000/mcp",
					},
				},
				{
					Name:    "social-trends",
					Type:    "grounded-trends",
					Tag:     "trends",
					Enabled: true,
					Config: map[string]interface{}{
						"model":        "default",
						"recency_days": 7,
					},
				},
				{
					Name:    "creative-analysis",
					Type:    "creative",
					Tag:     "creative",
					Enabled: true,
					Config: map[string]interface{}{
						"executor": "toolbox",
						"url":      "http://127.0.0.1:5000/mcp",
						"model":    "default",
					},
				},
			},
		},
	}
}
