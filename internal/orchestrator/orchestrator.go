// Package orchestrator drives one phase of a spec workflow end to end:
// dependency check, lock acquisition, packet assembly, LLM invocation,
// validation, canonicalization, promotion, and receipt emission.
//
// The orchestrator has been split by concern the way codeNERD splits its
// campaign orchestrator into several files:
//
//   - orchestrator.go: types, construction, phase-state bookkeeping.
//   - run.go: the run_phase procedure itself.
package orchestrator

import (
	"sync"

	"xchecker/internal/artifact"
	"xchecker/internal/config"
	"xchecker/internal/llm"
	"xchecker/internal/phase"
	"xchecker/internal/receipt"
	"xchecker/internal/redact"
	"xchecker/internal/sandbox"
)

// State is one phase's position in its NotStarted -> Running ->
// (Succeeded | Failed | RewoundFrom) lifecycle.
type State string

const (
	StateNotStarted  State = "not_started"
	StateRunning     State = "running"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
	StateRewoundFrom State = "rewound_from"
)

// MaxRewinds bounds how many Rewind next_steps one Orchestrator will honor
// across its lifetime, preventing rewind loops.
const MaxRewinds = 2

// RunResult is what RunPhase returns on success.
type RunResult struct {
	Phase       phase.ID
	ExitCode    int
	NextStep    phase.NextStep
	ReceiptPath string
	Warnings    []string
}

// Orchestrator runs phases for one spec workspace, rooted at
// .xchecker/specs/<spec_id>/.
type Orchestrator struct {
	mu sync.Mutex

	root     *sandbox.Root
	specID   string
	cfg      *config.Config
	client   llm.Client
	redactor *redact.Redactor

	phases    map[phase.ID]phase.Phase
	artifacts *artifact.Store
	receipts  *receipt.Store

	states      map[phase.ID]State
	rewindsUsed int
}

// New constructs an Orchestrator for specID rooted at root (the spec's own
// .xchecker/specs/<spec_id>/ directory). redactor may be nil to use the
// package default.
func New(root *sandbox.Root, specID string, cfg *config.Config, client llm.Client, redactor *redact.Redactor) *Orchestrator {
	if redactor == nil {
		redactor = redact.Default()
	}
	return &Orchestrator{
		root:      root,
		specID:    specID,
		cfg:       cfg,
		client:    client,
		redactor:  redactor,
		phases:    phase.All(),
		artifacts: artifact.NewStore(root, "artifacts"),
		receipts:  receipt.NewStore(root, "receipts"),
		states:    make(map[phase.ID]State),
	}
}

// State returns the current tracked state of id, defaulting to
// StateNotStarted if RunPhase has never touched it this process.
func (o *Orchestrator) State(id phase.ID) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[id]; ok {
		return s
	}
	return StateNotStarted
}

func (o *Orchestrator) setState(id phase.ID, s State) {
	o.mu.Lock()
	o.states[id] = s
	o.mu.Unlock()
}

// resetFrom marks every phase from id onward (per phase.Order) as
// NotStarted, implementing a Rewind's "reset completion of phases from to
// onward."
func (o *Orchestrator) resetFrom(id phase.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	reset := false
	for _, p := range phase.Order {
		if p == id {
			reset = true
		}
		if reset {
			o.states[p] = StateNotStarted
		}
	}
}
