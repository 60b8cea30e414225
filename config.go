package taskgate

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/taskgate/taskgate/service/classifier"
	"github.com/taskgate/taskgate/service/planner"
)

// Config is a serialisable representation of the engine configuration. The
// zero-value is useful: all fields inherit their package defaults via Init.
type Config struct {
	// BaseURL locates the partition root (file:///path or mem://localhost/...).
	BaseURL string `json:"baseURL" yaml:"baseURL"`

	MaxConcurrentTasks  int `json:"maxConcurrentTasks" yaml:"maxConcurrentTasks"`
	ApprovalTTLHours    int `json:"approvalTTLHours" yaml:"approvalTTLHours"`
	PollIntervalSeconds int `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds"`

	UrgencyKeywords  []string `json:"urgencyKeywords,omitempty" yaml:"urgencyKeywords,omitempty"`
	ApprovalTriggers []string `json:"approvalTriggers,omitempty" yaml:"approvalTriggers,omitempty"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	ret := &Config{}
	ret.Init()
	return ret
}

// Init fills zero-valued fields with their defaults.
func (c *Config) Init() {
	if c.BaseURL == "" {
		c.BaseURL = "file:///tmp/taskgate"
	}
	if c.MaxConcurrentTasks == 0 {
		c.MaxConcurrentTasks = 3
	}
	if c.ApprovalTTLHours == 0 {
		c.ApprovalTTLHours = 24
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 30
	}
	if len(c.UrgencyKeywords) == 0 {
		c.UrgencyKeywords = classifier.DefaultUrgencyKeywords
	}
	if len(c.ApprovalTriggers) == 0 {
		c.ApprovalTriggers = planner.DefaultApprovalTriggers
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.MaxConcurrentTasks < 0 {
		return fmt.Errorf("maxConcurrentTasks must be >= 0")
	}
	if c.ApprovalTTLHours < 0 {
		return fmt.Errorf("approvalTTLHours must be >= 0")
	}
	if c.PollIntervalSeconds < 0 {
		return fmt.Errorf("pollIntervalSeconds must be >= 0")
	}
	return nil
}

// TTL returns the approval time-to-live as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.ApprovalTTLHours) * time.Hour
}

// PollInterval returns the sweep cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LoadConfig reads a YAML config from the supplied URL and applies defaults.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	config.Init()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
