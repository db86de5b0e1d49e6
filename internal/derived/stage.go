package derived

import (
	"context"
	"encoding/json"
	"sort"
)

// Input is the email content handed to every stage.
type Input struct {
	AccountID string
	EmailID   string
	Subject   string
	HTML      string
	Plain     string
	// Text is the sanitized subject and body.
	Text string
}

// Stage extracts one kind of structured data from an email body.
type Stage interface {
	Name() string
	Priority() int
	Process(ctx context.Context, in Input) (json.RawMessage, error)
}

// Registry holds stages ordered by priority, highest first.
type Registry struct {
	stages []Stage
}

func NewRegistry(stages ...Stage) *Registry {
	r := &Registry{}
	for _, s := range stages {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Stage) {
	r.stages = append(r.stages, s)
	sort.SliceStable(r.stages, func(i, j int) bool {
		return r.stages[i].Priority() > r.stages[j].Priority()
	})
}

// Stages returns the registered stages, highest priority first.
func (r *Registry) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}
