// Package classifier derives task priority from record content. The
// classification is a pure function: deterministic, side-effect free and
// total, so it can run inside any sweep step without failure handling.
package classifier

import (
	"strings"

	"github.com/taskgate/taskgate/model"
)

// DefaultUrgencyKeywords is the fixed keyword set marking a task urgent.
var DefaultUrgencyKeywords = []string{"urgent", "asap", "help", "emergency", "critical"}

// Classifier tags task content with a priority.
type Classifier struct {
	keywords []string
}

// New creates a classifier. With no keywords the default urgency set applies.
func New(keywords ...string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultUrgencyKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		lowered = append(lowered, strings.ToLower(keyword))
	}
	return &Classifier{keywords: lowered}
}

// Classify returns high when any urgency keyword occurs in the content,
// matched case-insensitively as a substring, otherwise normal.
func (c *Classifier) Classify(content string) model.Priority {
	lowered := strings.ToLower(content)
	for _, keyword := range c.keywords {
		if strings.Contains(lowered, keyword) {
			return model.PriorityHigh
		}
	}
	return model.PriorityNormal
}
