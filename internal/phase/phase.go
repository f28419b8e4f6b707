// Package phase defines the six spec-generation phases — Requirements,
// Design, Tasks, Review, Fixup, Final — each exposing a prompt, a packet
// spec, and output post-processing to the Orchestrator.
package phase

import (
	"fmt"
	"strings"

	"xchecker/internal/artifact"
	"xchecker/internal/canon"
	"xchecker/internal/selector"
)

// ID names one of the six phases in the dependency DAG.
type ID string

const (
	Requirements ID = "requirements"
	Design       ID = "design"
	Tasks        ID = "tasks"
	Review       ID = "review"
	Fixup        ID = "fixup"
	Final        ID = "final"
)

// Order is the full dependency chain, earliest first.
var Order = []ID{Requirements, Design, Tasks, Review, Fixup, Final}

// deps maps each phase to its direct predecessor, per the linear DAG
// Requirements -> Design -> Tasks -> Review -> Fixup -> Final.
var deps = map[ID][]ID{
	Requirements: nil,
	Design:       {Requirements},
	Tasks:        {Design},
	Review:       {Tasks},
	Fixup:        {Review},
	Final:        nil,
}

// NextStepKind discriminates a PhaseResult's continuation.
type NextStepKind string

const (
	StepContinue NextStepKind = "continue"
	StepRewind   NextStepKind = "rewind"
	StepComplete NextStepKind = "complete"
)

// NextStep tells the Orchestrator what to do after a phase completes.
type NextStep struct {
	Kind       NextStepKind
	RewindTo   ID
}

// Result is what a Phase's postprocess produces.
type Result struct {
	Artifacts []artifact.Artifact
	NextStep  NextStep
	Metadata  map[string]string
}

// Context carries everything a Phase needs to build its prompt and packet:
// the spec id, the problem statement, and prior artifacts' content keyed by
// name, for phases that reference earlier output.
type Context struct {
	SpecID            string
	ProblemStatement  string
	PriorArtifacts    map[string]string // artifact name -> content
	ReviewNeedsFixups bool
	SelectedFiles     []selector.File
}

// antiMetaSummaryPreamble is prepended to every generative phase's prompt:
// it forbids the common "I will/Here is" openers and requires the document
// header to lead the response.
const antiMetaSummaryPreamble = `Respond with the document itself, not a description of your work. Do not begin with "I will", "Here is", "I have created", "I've created", "Perfect!", "Great!", "Based on", or "As requested". The first line of your response must be the document's own header.

`

// Phase is implemented by each of the six spec-generation phases.
type Phase interface {
	ID() ID
	Deps() []ID
	CanResume() bool
	Prompt(ctx Context) string
	MakePacket(ctx Context) []selector.File
	Postprocess(raw string, ctx Context) (Result, error)
}

// ArtifactPrefix maps a phase to its two-digit artifact ordering prefix.
var ArtifactPrefix = map[ID]string{
	Requirements: "00",
	Design:       "10",
	Tasks:        "20",
	Review:       "30",
	Fixup:        "40",
}

// ExpectedArtifacts returns the artifact names a completed phase must have
// produced, e.g. ["00-requirements.md", "00-requirements.core.yaml"].
func ExpectedArtifacts(id ID) []string {
	prefix, ok := ArtifactPrefix[id]
	if !ok {
		return nil
	}
	return []string{
		fmt.Sprintf("%s-%s.md", prefix, id),
		fmt.Sprintf("%s-%s.core.yaml", prefix, id),
	}
}

// basePhase implements the parts of Phase common to every generative
// phase; concrete phases embed it and override Prompt/Postprocess.
type basePhase struct {
	id ID
}

func (b basePhase) ID() ID        { return b.id }
func (b basePhase) Deps() []ID    { return deps[b.id] }
func (b basePhase) CanResume() bool { return true }

func (b basePhase) MakePacket(ctx Context) []selector.File {
	return ctx.SelectedFiles
}

// buildDocumentAndMetadata canonicalizes raw into the phase's Markdown
// artifact plus a cheap-extractor core.yaml metadata artifact.
func buildDocumentAndMetadata(id ID, raw string) ([]artifact.Artifact, error) {
	prefix := ArtifactPrefix[id]
	trimmed := strings.TrimSpace(raw)

	mdArtifact, err := artifact.New(fmt.Sprintf("%s-%s.md", prefix, id), trimmed, canon.KindMarkdown)
	if err != nil {
		return nil, err
	}

	meta := ExtractMetadata(trimmed)
	yamlContent, err := meta.ToYAML()
	if err != nil {
		return nil, fmt.Errorf("phase: metadata to yaml: %w", err)
	}
	yamlArtifact, err := artifact.New(fmt.Sprintf("%s-%s.core.yaml", prefix, id), yamlContent, canon.KindYAML)
	if err != nil {
		return nil, err
	}

	return []artifact.Artifact{mdArtifact, yamlArtifact}, nil
}

// RequirementsPhase is the first phase: no dependencies, produces the
// requirements document and its metadata.
type RequirementsPhase struct{ basePhase }

func NewRequirementsPhase() *RequirementsPhase {
	return &RequirementsPhase{basePhase{id: Requirements}}
}

func (p *RequirementsPhase) Prompt(ctx Context) string {
	return antiMetaSummaryPreamble + "Write a Requirements Document for the following problem statement:\n\n" + ctx.ProblemStatement
}

func (p *RequirementsPhase) Postprocess(raw string, ctx Context) (Result, error) {
	artifacts, err := buildDocumentAndMetadata(Requirements, raw)
	if err != nil {
		return Result{}, err
	}
	return Result{Artifacts: artifacts, NextStep: NextStep{Kind: StepContinue}}, nil
}

// DesignPhase depends on Requirements.
type DesignPhase struct{ basePhase }

func NewDesignPhase() *DesignPhase { return &DesignPhase{basePhase{id: Design}} }

func (p *DesignPhase) Prompt(ctx Context) string {
	return antiMetaSummaryPreamble + "Write a Design document based on the Requirements Document below:\n\n" + ctx.PriorArtifacts["00-requirements.md"]
}

func (p *DesignPhase) Postprocess(raw string, ctx Context) (Result, error) {
	artifacts, err := buildDocumentAndMetadata(Design, raw)
	if err != nil {
		return Result{}, err
	}
	return Result{Artifacts: artifacts, NextStep: NextStep{Kind: StepContinue}}, nil
}

// TasksPhase depends on Design.
type TasksPhase struct{ basePhase }

func NewTasksPhase() *TasksPhase { return &TasksPhase{basePhase{id: Tasks}} }

func (p *TasksPhase) Prompt(ctx Context) string {
	return antiMetaSummaryPreamble + "Write an implementation task list based on the Design document below:\n\n" + ctx.PriorArtifacts["10-design.md"]
}

func (p *TasksPhase) Postprocess(raw string, ctx Context) (Result, error) {
	artifacts, err := buildDocumentAndMetadata(Tasks, raw)
	if err != nil {
		return Result{}, err
	}
	return Result{Artifacts: artifacts, NextStep: NextStep{Kind: StepContinue}}, nil
}

// ReviewPhase depends on Tasks. Sets needs_fixups metadata when fixup
// markers are present in the raw output.
type ReviewPhase struct{ basePhase }

func NewReviewPhase() *ReviewPhase { return &ReviewPhase{basePhase{id: Review}} }

func (p *ReviewPhase) Prompt(ctx Context) string {
	return antiMetaSummaryPreamble + "Review the implementation against the Task list below. If fixups are needed, include unified diffs under a \"FIXUP PLAN:\" heading.\n\n" + ctx.PriorArtifacts["20-tasks.md"]
}

func (p *ReviewPhase) Postprocess(raw string, ctx Context) (Result, error) {
	artifacts, err := buildDocumentAndMetadata(Review, raw)
	if err != nil {
		return Result{}, err
	}
	meta := map[string]string{}
	if HasFixupMarker(raw) {
		meta["needs_fixups"] = "true"
	}
	return Result{Artifacts: artifacts, NextStep: NextStep{Kind: StepContinue}, Metadata: meta}, nil
}

// FixupPhase depends on Review. Its next_step is computed by the caller
// (the Orchestrator, in collaboration with the Fixup Engine) based on
// which artifacts were actually touched by an applied diff — Postprocess
// here only produces the phase's own document/metadata pair.
type FixupPhase struct{ basePhase }

func NewFixupPhase() *FixupPhase { return &FixupPhase{basePhase{id: Fixup}} }

func (p *FixupPhase) Prompt(ctx Context) string {
	return antiMetaSummaryPreamble + "Summarize the fixups applied, if any, based on the Review output below:\n\n" + ctx.PriorArtifacts["30-review.md"]
}

func (p *FixupPhase) Postprocess(raw string, ctx Context) (Result, error) {
	artifacts, err := buildDocumentAndMetadata(Fixup, raw)
	if err != nil {
		return Result{}, err
	}
	return Result{Artifacts: artifacts, NextStep: NextStep{Kind: StepContinue}}, nil
}

// FinalPhase is reserved; not yet implemented per the phase-specific
// contract table, it always reports Complete with no artifacts.
type FinalPhase struct{ basePhase }

func NewFinalPhase() *FinalPhase { return &FinalPhase{basePhase{id: Final}} }

func (p *FinalPhase) Prompt(ctx Context) string { return "" }

func (p *FinalPhase) Postprocess(raw string, ctx Context) (Result, error) {
	return Result{NextStep: NextStep{Kind: StepComplete}}, nil
}

// HasFixupMarker reports whether text contains a case-insensitive
// "FIXUP PLAN:" or "needs fixups" marker.
func HasFixupMarker(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "fixup plan:") || strings.Contains(lower, "needs fixups")
}

// All constructs every phase, keyed by ID, for an Orchestrator to dispatch
// against.
func All() map[ID]Phase {
	return map[ID]Phase{
		Requirements: NewRequirementsPhase(),
		Design:       NewDesignPhase(),
		Tasks:        NewTasksPhase(),
		Review:       NewReviewPhase(),
		Fixup:        NewFixupPhase(),
		Final:        NewFinalPhase(),
	}
}
