package model

import "time"

// Step is one named checklist entry of a plan. Steps are monotonic: once
// marked done a step is never unchecked.
type Step struct {
	Name string `json:"name" yaml:"name"`
	Done bool   `json:"done" yaml:"done"`
}

// Plan is the single plan associated with exactly one task. A task with no
// plan cannot progress.
type Plan struct {
	TaskID           string    `json:"taskId" yaml:"task_id"`
	Objective        string    `json:"objective" yaml:"objective"`
	Steps            []Step    `json:"steps" yaml:"steps"`
	RequiresApproval bool      `json:"requiresApproval" yaml:"requires_approval"`
	CreatedAt        time.Time `json:"createdAt" yaml:"created"`
}

// Complete marks the named step done. Unknown names are ignored; completion
// is idempotent.
func (p *Plan) Complete(name string) {
	for i := range p.Steps {
		if p.Steps[i].Name == name {
			p.Steps[i].Done = true
			return
		}
	}
}

// Completed reports whether every step of the plan is done.
func (p *Plan) Completed() bool {
	for i := range p.Steps {
		if !p.Steps[i].Done {
			return false
		}
	}
	return len(p.Steps) > 0
}
