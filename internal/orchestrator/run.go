package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xchecker/internal/artifact"
	"xchecker/internal/errs"
	"xchecker/internal/llm"
	"xchecker/internal/lock"
	"xchecker/internal/packet"
	"xchecker/internal/phase"
	"xchecker/internal/receipt"
	"xchecker/internal/selector"
	"xchecker/internal/validate"
	"xchecker/internal/xlog"
)

const problemStatementRel = "source/00-problem-statement.md"

// RunPhase executes the Orchestrator.run_phase(phase_id) procedure: checks
// dependencies, acquires the lock, builds the prompt and packet, invokes
// the LLM, validates and stages the result, promotes it, and emits a
// receipt, returning the translated next step.
func (o *Orchestrator) RunPhase(ctx context.Context, id phase.ID) (RunResult, error) {
	p, ok := o.phases[id]
	if !ok {
		return RunResult{}, errs.New(errs.CategoryInternal, "unknown phase", string(id))
	}

	if err := o.checkDeps(p); err != nil {
		return RunResult{}, err
	}

	o.setState(id, StateRunning)

	l := lock.New(o.root.Base())
	if err := l.Acquire(false, o.cfg.LockTTLDuration()); err != nil {
		o.setState(id, StateFailed)
		var contention *lock.ContentionError
		if errors.As(err, &contention) {
			return RunResult{}, errs.Wrap(errs.CategoryConcurrency, err, "spec is locked by another run", contention.LockPath,
				"wait for the other run to finish, or retry with --force once it is stale")
		}
		return RunResult{}, errs.Wrap(errs.CategoryConcurrency, err, "could not acquire spec lock", o.specID)
	}
	defer l.Release()

	pins := lock.Pins{ModelFullName: o.cfg.ModelFullName, LLMCLIVersion: o.cfg.LLMCLIVersion}
	drifts, err := l.CheckDrift(pins)
	if err != nil {
		o.setState(id, StateFailed)
		return RunResult{}, errs.Wrap(errs.CategoryConcurrency, err, "could not read lock pins", o.specID)
	}
	if err := lock.HandleDrift(lock.DriftMode(o.cfg.LockDrift), drifts); err != nil {
		o.setState(id, StateFailed)
		return RunResult{}, errs.Wrap(errs.CategoryConcurrency, err, "lock drift detected under strict mode", o.specID)
	}

	phaseCtx, err := o.buildContext(p)
	if err != nil {
		o.setState(id, StateFailed)
		return RunResult{}, err
	}

	prompt := p.Prompt(phaseCtx)
	files := p.MakePacket(phaseCtx)

	builder := packet.NewBuilder(
		packet.Budget{MaxBytes: o.cfg.Budget.MaxBytes, MaxLines: o.cfg.Budget.MaxLines},
		o.redactor,
		o.cfg.DebugPackets,
	)
	pkt, err := builder.Build(o.root, "context", string(id), files)
	if err != nil {
		o.setState(id, StateFailed)
		return RunResult{}, o.failSecurityOrResource(id, err)
	}

	timeout := o.cfg.PhaseTimeoutDuration()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := o.client.Run(runCtx, prompt, pkt.Content)
	if err != nil || result.ExitCode != 0 {
		o.setState(id, StateFailed)
		o.emitFailureReceipt(id, result, pkt, err)
		if err != nil {
			return RunResult{}, errs.Wrap(errs.CategoryLLMIntegration, err, "LLM invocation failed", fmt.Sprintf("phase=%s timeout=%s", id, timeout))
		}
		return RunResult{}, errs.New(errs.CategoryPhaseExecution, "LLM exited with non-zero status", fmt.Sprintf("phase=%s exit_code=%d", id, result.ExitCode))
	}

	postResult, err := p.Postprocess(result.Completion, phaseCtx)
	if err != nil {
		o.setState(id, StateFailed)
		return RunResult{}, errs.Wrap(errs.CategoryPhaseExecution, err, "postprocessing failed", string(id))
	}

	valResult := validate.Validate(string(id), strings.TrimSpace(result.Completion), validate.DefaultRules())
	var warnings []string
	if !valResult.Passed() {
		for _, issue := range valResult.Issues {
			warnings = append(warnings, fmt.Sprintf("%s: %s", issue.Rule, issue.Message))
		}
		if o.cfg.Validate.Strict {
			o.setState(id, StateFailed)
			o.emitValidationFailureReceipt(id, result, pkt, warnings)
			return RunResult{}, errs.New(errs.CategoryValidation, "output failed validation in strict mode", strings.Join(warnings, "; "))
		}
		xlog.Get(xlog.CategoryOrchestrator).Warn("phase %s has %d validation issue(s) (soft mode)", id, len(valResult.Issues))
	}

	for _, a := range postResult.Artifacts {
		if err := o.artifacts.Stage(a); err != nil {
			o.setState(id, StateFailed)
			return RunResult{}, errs.Wrap(errs.CategoryFileSystem, err, "could not stage artifact", a.Name)
		}
	}
	names := make([]string, 0, len(postResult.Artifacts))
	for _, a := range postResult.Artifacts {
		names = append(names, a.Name)
	}
	if err := o.artifacts.Promote(names); err != nil {
		o.setState(id, StateFailed)
		return RunResult{}, errs.Wrap(errs.CategoryFileSystem, err, "could not promote artifacts", string(id))
	}

	if err := l.RecordPins(pins); err != nil {
		warnings = append(warnings, fmt.Sprintf("could not record lock pins: %v", err))
	}

	nextStep, flags, err := o.translateNextStep(postResult.NextStep)
	if err != nil {
		o.setState(id, StateFailed)
		return RunResult{}, err
	}
	for k, v := range postResult.Metadata {
		flags[k] = v
	}

	receiptPath := o.emitSuccessReceipt(id, result, pkt, postResult.Artifacts, warnings, flags)

	o.setState(id, StateSucceeded)
	if nextStep.Kind == phase.StepRewind {
		o.setState(nextStep.RewindTo, StateRewoundFrom)
		o.resetFrom(nextStep.RewindTo)
	}

	return RunResult{Phase: id, ExitCode: 0, NextStep: nextStep, ReceiptPath: receiptPath, Warnings: warnings}, nil
}

// checkDeps verifies every dependency of p has completed, per Artifact
// Store queries.
func (o *Orchestrator) checkDeps(p phase.Phase) error {
	for _, dep := range p.Deps() {
		expected := phase.ExpectedArtifacts(dep)
		if expected == nil {
			continue
		}
		done, err := o.artifacts.PhaseCompleted(expected)
		if err != nil {
			return errs.Wrap(errs.CategoryFileSystem, err, "could not check dependency completion", string(dep))
		}
		if !done {
			return errs.New(errs.CategoryPhaseExecution, "dependency not satisfied", fmt.Sprintf("phase %s requires %s to have completed", p.ID(), dep))
		}
	}
	return nil
}

// buildContext assembles the phase.Context: the problem statement (for
// Requirements), prior artifacts' content keyed by name, and the
// candidate files the Selector found under the spec workspace.
func (o *Orchestrator) buildContext(p phase.Phase) (phase.Context, error) {
	ctx := phase.Context{SpecID: o.specID}

	if p.ID() == phase.Requirements {
		data, err := os.ReadFile(filepath.Join(o.root.Base(), filepath.FromSlash(problemStatementRel)))
		if err != nil {
			return phase.Context{}, errs.Wrap(errs.CategorySource, err, "problem statement unreadable", problemStatementRel)
		}
		ctx.ProblemStatement = strings.TrimSpace(string(data))
	}

	ctx.PriorArtifacts = make(map[string]string)
	for _, dep := range p.Deps() {
		for _, name := range phase.ExpectedArtifacts(dep) {
			data, err := os.ReadFile(filepath.Join(o.root.Base(), "artifacts", name))
			if err != nil {
				continue
			}
			ctx.PriorArtifacts[name] = string(data)
		}
	}

	selected, err := selector.Select(context.Background(), o.root.Base(), selector.Config{
		Include: o.cfg.Selector.Include,
		Exclude: o.cfg.Selector.Exclude,
		Classes: selector.DefaultClasses(),
	})
	if err != nil {
		return phase.Context{}, errs.Wrap(errs.CategoryFileSystem, err, "could not select candidate files", o.specID)
	}
	ctx.SelectedFiles = selected

	if p.ID() == phase.Fixup {
		ctx.ReviewNeedsFixups = o.latestReviewNeedsFixups()
	}

	return ctx, nil
}

// latestReviewNeedsFixups reports whether the most recent review receipt
// carried the needs_fixups flag, so the Fixup phase knows whether Review
// found anything to act on.
func (o *Orchestrator) latestReviewNeedsFixups() bool {
	receipts, err := o.receipts.List()
	if err != nil {
		return false
	}
	for i := len(receipts) - 1; i >= 0; i-- {
		if receipts[i].Phase != string(phase.Review) {
			continue
		}
		return receipts[i].Flags["needs_fixups"] == "true"
	}
	return false
}

func (o *Orchestrator) failSecurityOrResource(id phase.ID, err error) error {
	var secret *packet.SecretDetected
	if errors.As(err, &secret) {
		o.receiptForEarlyFailure(id, errs.ExitCode(errs.CategorySecurity), fmt.Sprintf("secret detected: %s:%d (%s)", secret.Path, secret.Line, secret.PatternID))
		return errs.Wrap(errs.CategorySecurity, err, "secret detected before LLM invocation", fmt.Sprintf("%s:%d", secret.Path, secret.Line))
	}
	var overflow *packet.Overflow
	if errors.As(err, &overflow) {
		o.receiptForEarlyFailure(id, errs.ExitCode(errs.CategoryResource), err.Error())
		return errs.Wrap(errs.CategoryResource, err, "packet exceeded budget", string(id))
	}
	o.receiptForEarlyFailure(id, errs.ExitCode(errs.CategoryResource), err.Error())
	return errs.Wrap(errs.CategoryResource, err, "packet build failed", string(id))
}

func (o *Orchestrator) receiptForEarlyFailure(id phase.ID, exitCode int, message string) {
	r := receipt.NewBuilder(o.specID, string(id), o.redactor).
		WithExitCode(exitCode).
		WithModel("", o.cfg.ModelFullName).
		WithToolVersion("llm_cli", o.cfg.LLMCLIVersion).
		WithStderrTail(message).
		Build()
	if _, err := o.receipts.Write(r); err != nil {
		xlog.Get(xlog.CategoryOrchestrator).Error("could not write failure receipt for %s: %v", id, err)
	}
}

func (o *Orchestrator) emitFailureReceipt(id phase.ID, result llm.Result, pkt *packet.Packet, runErr error) {
	exitCode := result.ExitCode
	if runErr != nil && exitCode == 0 {
		exitCode = errs.ExitCode(errs.CategoryLLMIntegration)
	}
	b := receipt.NewBuilder(o.specID, string(id), o.redactor).
		WithExitCode(exitCode).
		WithModel(result.ModelAlias, result.ModelFullName).
		WithToolVersion("llm_cli", result.CLIVersion).
		WithRunner(receipt.Runner(result.Runner), result.RunnerDistro)
	if pkt != nil {
		b = b.WithPacketEvidence(pkt.Evidence)
	}
	stderr := result.Stderr
	if runErr != nil {
		stderr = strings.TrimSpace(stderr + "\n" + runErr.Error())
	}
	b = b.WithStderrTail(stderr)
	r := b.Build()
	if _, err := o.receipts.Write(r); err != nil {
		xlog.Get(xlog.CategoryOrchestrator).Error("could not write failure receipt for %s: %v", id, err)
	}
}

func (o *Orchestrator) emitValidationFailureReceipt(id phase.ID, result llm.Result, pkt *packet.Packet, warnings []string) {
	b := receipt.NewBuilder(o.specID, string(id), o.redactor).
		WithExitCode(errs.ExitCode(errs.CategoryValidation)).
		WithModel(result.ModelAlias, result.ModelFullName).
		WithToolVersion("llm_cli", result.CLIVersion).
		WithRunner(receipt.Runner(result.Runner), result.RunnerDistro)
	if pkt != nil {
		b = b.WithPacketEvidence(pkt.Evidence)
	}
	for _, w := range warnings {
		b = b.WithWarning(w)
	}
	r := b.Build()
	if _, err := o.receipts.Write(r); err != nil {
		xlog.Get(xlog.CategoryOrchestrator).Error("could not write validation-failure receipt for %s: %v", id, err)
	}
}

func (o *Orchestrator) emitSuccessReceipt(id phase.ID, result llm.Result, pkt *packet.Packet, artifacts []artifact.Artifact, warnings []string, flags map[string]string) string {
	b := receipt.NewBuilder(o.specID, string(id), o.redactor).
		WithExitCode(0).
		WithModel(result.ModelAlias, result.ModelFullName).
		WithToolVersion("llm_cli", result.CLIVersion).
		WithRunner(receipt.Runner(result.Runner), result.RunnerDistro)
	if pkt != nil {
		b = b.WithPacketEvidence(pkt.Evidence)
	}
	for name, value := range flags {
		b = b.WithFlag(name, value)
	}
	for _, w := range warnings {
		b = b.WithWarning(w)
	}
	for _, a := range artifacts {
		b = b.AddFileHash(a.Name, a.Kind, a.BLAKE3)
	}
	r := b.Build()
	path, err := o.receipts.Write(r)
	if err != nil {
		xlog.Get(xlog.CategoryOrchestrator).Error("could not write success receipt for %s: %v", id, err)
		return ""
	}
	return path
}

// translateNextStep converts a PhaseResult.next_step into the Orchestrator's
// bookkeeping, enforcing MaxRewinds.
func (o *Orchestrator) translateNextStep(step phase.NextStep) (phase.NextStep, map[string]string, error) {
	flags := map[string]string{}
	switch step.Kind {
	case phase.StepRewind:
		o.mu.Lock()
		if o.rewindsUsed >= MaxRewinds {
			o.mu.Unlock()
			return phase.NextStep{}, nil, errs.New(errs.CategoryPhaseExecution, "rewind bound exceeded", fmt.Sprintf("already used %d of %d allowed rewinds", o.rewindsUsed, MaxRewinds))
		}
		o.rewindsUsed++
		o.mu.Unlock()
		flags["rewind_triggered"] = "true"
		flags["rewind_target"] = string(step.RewindTo)
		return step, flags, nil
	case phase.StepComplete, phase.StepContinue:
		return step, flags, nil
	default:
		return phase.NextStep{Kind: phase.StepContinue}, flags, nil
	}
}
