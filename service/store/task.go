package store

import (
	"strings"

	"github.com/taskgate/taskgate/internal/clock"
	"github.com/taskgate/taskgate/model"
)

// TaskFromRecord assembles a point-in-time task view from its durable
// record. Producers may omit priority; the classifier fills it in at
// ingestion. A missing created timestamp falls back to now so that a sloppy
// producer cannot stall the lifecycle.
func TaskFromRecord(ref Ref, record *Record) *model.Task {
	task := &model.Task{
		ID:       ref.Name,
		Type:     record.Header.String(KeyType),
		Body:     record.Body,
		Priority: model.Priority(record.Header.String(KeyPriority)),
		State:    model.State(record.Header.String(KeyStatus)),
	}
	if task.Type == "" {
		task.Type = typeFromName(ref.Name)
	}
	if task.Priority == "" {
		task.Priority = model.PriorityNormal
	}
	if task.State == "" {
		task.State = model.StateIngested
	}
	if created, err := record.Header.Time(KeyCreated); err == nil {
		task.CreatedAt = created
	} else {
		task.CreatedAt = clock.Now()
	}
	if payload, ok := record.Header["payload"].(map[string]interface{}); ok {
		task.Payload = payload
	}
	return task
}

// typeFromName extracts a type tag from names like EMAIL_20260831_154500_ab12.
func typeFromName(name string) string {
	if idx := strings.Index(name, "_"); idx > 0 {
		return strings.ToLower(name[:idx])
	}
	return "unknown"
}
