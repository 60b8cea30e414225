package taskgate

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.NoError(t, config.Validate())
	assert.Equal(t, 3, config.MaxConcurrentTasks)
	assert.Equal(t, 24, config.ApprovalTTLHours)
	assert.Equal(t, 30, config.PollIntervalSeconds)
	assert.Equal(t, 24*time.Hour, config.TTL())
	assert.Equal(t, 30*time.Second, config.PollInterval())
	assert.NotEmpty(t, config.UrgencyKeywords)
	assert.NotEmpty(t, config.ApprovalTriggers)
}

func TestConfigValidate(t *testing.T) {
	config := &Config{MaxConcurrentTasks: -1}
	assert.Error(t, config.Validate())
	config = &Config{ApprovalTTLHours: -1}
	assert.Error(t, config.Validate())
	config = &Config{PollIntervalSeconds: -1}
	assert.Error(t, config.Validate())
}

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()
	data := []byte(`baseURL: mem://localhost/engine
maxConcurrentTasks: 5
approvalTTLHours: 12
urgencyKeywords:
  - blocker
`)
	URL := "mem://localhost/" + t.Name() + "/config.yaml"
	fs := afs.New()
	assert.NoError(t, fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)))

	config, err := LoadConfig(ctx, URL)
	assert.NoError(t, err)
	assert.Equal(t, "mem://localhost/engine", config.BaseURL)
	assert.Equal(t, 5, config.MaxConcurrentTasks)
	assert.Equal(t, 12, config.ApprovalTTLHours)
	// Unset fields inherit defaults.
	assert.Equal(t, 30, config.PollIntervalSeconds)
	assert.Equal(t, []string{"blocker"}, config.UrgencyKeywords)

	_, err = LoadConfig(ctx, "mem://localhost/"+t.Name()+"/missing.yaml")
	assert.Error(t, err)
}
