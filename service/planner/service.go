// Package planner turns an ingested task into a plan record: a fixed
// checklist plus an approval requirement derived from content-sensitivity
// rules. Plans are created exactly once per task; a task with no plan cannot
// progress.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskgate/taskgate/internal/clock"
	"github.com/taskgate/taskgate/model"
	"github.com/taskgate/taskgate/service/store"
)

// DefaultApprovalTriggers is the fixed keyword set that flags content as
// sensitive enough to require a human decision.
var DefaultApprovalTriggers = []string{
	"email", "send", "payment", "financial", "money", "invoice",
	"social media", "post", "marketing", "customer", "client",
	"urgent", "asap", "critical",
}

// DefaultObjective is used when no content-bearing line can be extracted.
const DefaultObjective = "Process the task according to its content"

// Step names of the fixed checklist template.
const (
	StepIdentify = "Identify information needed"
	StepDraft    = "Draft response/action"
	StepApprove  = "Get approval (if required)"
	StepExecute  = "Execute action"
	StepArchive  = "Log and archive"
)

var stepTemplate = []string{StepIdentify, StepDraft, StepApprove, StepExecute, StepArchive}

// Service creates and maintains plan records.
type Service struct {
	store    store.Service
	triggers []string
}

// New creates a planner backed by the given record store. With no triggers
// the default approval trigger set applies.
func New(recordStore store.Service, triggers ...string) *Service {
	if len(triggers) == 0 {
		triggers = DefaultApprovalTriggers
	}
	lowered := make([]string, 0, len(triggers))
	for _, trigger := range triggers {
		lowered = append(lowered, strings.ToLower(trigger))
	}
	return &Service{store: recordStore, triggers: lowered}
}

// RequiresApproval reports whether the content matches any approval trigger.
func (s *Service) RequiresApproval(content string) bool {
	lowered := strings.ToLower(content)
	for _, trigger := range s.triggers {
		if strings.Contains(lowered, trigger) {
			return true
		}
	}
	return false
}

// CreatePlan reads the task record, derives the plan and persists it in the
// Plans partition. When the task record cannot be read nothing is persisted.
func (s *Service) CreatePlan(ctx context.Context, taskRef store.Ref) (*model.Plan, store.Ref, error) {
	record, err := s.store.Read(ctx, taskRef)
	if err != nil {
		return nil, store.Ref{}, err
	}
	content := record.Body
	now := clock.Now()

	plan := &model.Plan{
		TaskID:           taskRef.Name,
		Objective:        Objective(content),
		RequiresApproval: s.RequiresApproval(content),
		CreatedAt:        now,
	}
	for _, name := range stepTemplate {
		plan.Steps = append(plan.Steps, model.Step{Name: name})
	}
	if !plan.RequiresApproval {
		// No gate to wait on: these steps resolve in the same sweep.
		plan.Complete(StepApprove)
		plan.Complete(StepExecute)
		plan.Complete(StepArchive)
	}

	planRecord := store.NewRecord()
	planRecord.Header[store.KeyType] = "plan"
	planRecord.Header[store.KeyTaskID] = plan.TaskID
	planRecord.Header[store.KeyRequiresApproval] = plan.RequiresApproval
	planRecord.Header[store.KeyObjective] = plan.Objective
	planRecord.Header[store.KeyStatus] = "pending"
	planRecord.Header.SetTime(store.KeyCreated, now)
	planRecord.Body = renderBody(plan)

	planRef, err := s.store.Create(ctx, store.PartitionPlans, "PLAN_"+taskRef.Name, planRecord)
	if err != nil {
		return nil, store.Ref{}, fmt.Errorf("failed to persist plan for %s: %w", taskRef.Name, err)
	}
	return plan, planRef, nil
}

// UpdatePlan overwrites the persisted checklist to reflect the in-memory
// plan. Steps are monotonic so the rendered record only ever gains checks.
func (s *Service) UpdatePlan(ctx context.Context, planRef store.Ref, plan *model.Plan) error {
	record, err := s.store.Read(ctx, planRef)
	if err != nil {
		return err
	}
	record.Body = renderBody(plan)
	if plan.Completed() {
		record.Header[store.KeyStatus] = "completed"
	}
	return s.store.Update(ctx, planRef, record)
}

// LoadPlan reconstructs a plan from its persisted record.
func (s *Service) LoadPlan(ctx context.Context, planRef store.Ref) (*model.Plan, error) {
	record, err := s.store.Read(ctx, planRef)
	if err != nil {
		return nil, err
	}
	plan := &model.Plan{
		TaskID:           record.Header.String(store.KeyTaskID),
		Objective:        record.Header.String(store.KeyObjective),
		RequiresApproval: record.Header.Bool(store.KeyRequiresApproval),
		Steps:            parseChecklist(record.Body),
	}
	if created, err := record.Header.Time(store.KeyCreated); err == nil {
		plan.CreatedAt = created
	}
	if plan.TaskID == "" {
		return nil, fmt.Errorf("%w: plan %s has no task_id", store.ErrMalformed, planRef.Name)
	}
	return plan, nil
}

// Objective extracts a best-effort objective from the first content-bearing
// line. This is a plain-text heuristic, not content understanding.
func Objective(content string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		lowered := strings.ToLower(line)
		if strings.Contains(lowered, "message_content:") || strings.Contains(lowered, "subject:") {
			return strings.TrimSpace(line)
		}
	}
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "---") {
			continue
		}
		runes := []rune(stripped)
		head := runes
		if len(head) > 20 {
			head = head[:20]
		}
		if strings.ContainsRune(string(head), ':') {
			continue
		}
		if len(runes) > 100 {
			return string(runes[:100]) + "..."
		}
		return stripped
	}
	return DefaultObjective
}

func renderBody(plan *model.Plan) string {
	var builder strings.Builder
	builder.WriteString("## Objective\n")
	builder.WriteString(plan.Objective)
	builder.WriteString("\n\n## Steps\n")
	for _, step := range plan.Steps {
		mark := " "
		if step.Done {
			mark = "x"
		}
		builder.WriteString(fmt.Sprintf("- [%s] %s\n", mark, step.Name))
	}
	return builder.String()
}

func parseChecklist(body string) []model.Step {
	var steps []model.Step
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "- [x] "):
			steps = append(steps, model.Step{Name: trimmed[len("- [x] "):], Done: true})
		case strings.HasPrefix(trimmed, "- [ ] "):
			steps = append(steps, model.Step{Name: trimmed[len("- [ ] "):]})
		}
	}
	return steps
}
