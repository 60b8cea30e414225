package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/viant/toolbox"
	"gopkg.in/yaml.v3"
)

// Well-known header keys shared by producers and the engine.
const (
	KeyType             = "type"
	KeyCreated          = "created"
	KeyPriority         = "priority"
	KeyStatus           = "status"
	KeyExpires          = "expires"
	KeyTaskID           = "task_id"
	KeyAction           = "action"
	KeyReason           = "reason"
	KeyOutcome          = "outcome"
	KeyRequiresApproval = "requires_approval"
	KeyObjective        = "objective"
	KeyDecided          = "decided"
	KeyArchived         = "archived"
)

const frontmatterDelimiter = "---"

// Header holds the structured portion of a record. Values arrive loosely
// typed from YAML so accessors coerce on read.
type Header map[string]interface{}

// String returns the header value coerced to string, or "" when absent.
func (h Header) String(key string) string {
	value, ok := h[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(toolbox.AsString(value))
}

// Bool returns the header value coerced to bool, false when absent.
func (h Header) Bool(key string) bool {
	value, ok := h[key]
	if !ok || value == nil {
		return false
	}
	return toolbox.AsBoolean(value)
}

// Time parses the header value as an RFC-3339 timestamp.
func (h Header) Time(key string) (time.Time, error) {
	text := h.String(key)
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: missing %v", ErrMalformed, key)
	}
	ts, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %v: %v", ErrMalformed, key, err)
	}
	return ts, nil
}

// SetTime stores a timestamp in RFC-3339 form so that any process (or a
// human editing the record) can read it back.
func (h Header) SetTime(key string, value time.Time) {
	h[key] = value.Format(time.RFC3339)
}

// Record is a self-describing unit of durable state: a YAML frontmatter
// header followed by a free-text body.
type Record struct {
	Header Header
	Body   string
}

// NewRecord creates a record with an initialised header.
func NewRecord() *Record {
	return &Record{Header: Header{}}
}

// Append adds a titled section to the record body, the convention used to
// annotate records (e.g. auto-rejection notes) without touching the header.
func (r *Record) Append(title, text string) {
	r.Body = strings.TrimRight(r.Body, "\n") + fmt.Sprintf("\n\n## %s\n%s\n", title, text)
}

// Encode serialises the record into its durable representation.
func (r *Record) Encode() ([]byte, error) {
	header, err := yaml.Marshal(r.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record header: %w", err)
	}
	var builder strings.Builder
	builder.WriteString(frontmatterDelimiter)
	builder.WriteString("\n")
	builder.Write(header)
	builder.WriteString(frontmatterDelimiter)
	builder.WriteString("\n\n")
	builder.WriteString(r.Body)
	return []byte(builder.String()), nil
}

// Decode parses the durable representation back into a record. A missing or
// unparsable frontmatter block yields ErrMalformed.
func Decode(data []byte) (*Record, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontmatterDelimiter+"\n") {
		return nil, fmt.Errorf("%w: missing frontmatter", ErrMalformed)
	}
	rest := text[len(frontmatterDelimiter)+1:]
	idx := strings.Index(rest, "\n"+frontmatterDelimiter)
	if idx < 0 {
		return nil, fmt.Errorf("%w: unterminated frontmatter", ErrMalformed)
	}
	headerText := rest[:idx+1]
	body := rest[idx+1+len(frontmatterDelimiter):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	header := Header{}
	if err := yaml.Unmarshal([]byte(headerText), &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Record{Header: header, Body: body}, nil
}
