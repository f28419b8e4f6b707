package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"xchecker/internal/artifact"
	"xchecker/internal/encode"
	"xchecker/internal/errs"
	"xchecker/internal/lock"
	"xchecker/internal/phase"
	"xchecker/internal/receipt"
	"xchecker/internal/sandbox"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status-json view of the current spec workspace",
	RunE:  runStatus,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Print the resume-json view: where a run would pick up next",
	RunE:  runResume,
}

var specCmd = &cobra.Command{
	Use:   "spec-json",
	Short: "Print the spec-json view: phases and effective configuration, no content",
	RunE:  runSpec,
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Print the gate-json verdict: whether every phase has succeeded",
	RunE:  runGate,
}

// phaseStates walks phase.Order, reporting each phase as succeeded if its
// expected artifacts are all promoted, otherwise not_started. This CLI
// process never holds the Orchestrator's in-memory state map, so status is
// always derived fresh from what is actually on disk.
func phaseStates(store *artifact.Store) ([]encode.PhaseStatus, error) {
	var states []encode.PhaseStatus
	for _, id := range phase.Order {
		expected := phase.ExpectedArtifacts(id)
		state := "not_started"
		if expected != nil {
			done, err := store.PhaseCompleted(expected)
			if err != nil {
				return nil, err
			}
			if done {
				state = "succeeded"
			}
		}
		states = append(states, encode.PhaseStatus{Phase: string(id), State: state})
	}
	return states, nil
}

func configInfo() encode.ConfigInfo {
	return encode.ConfigInfo{
		MaxBytes:         cfg.Budget.MaxBytes,
		MaxLines:         cfg.Budget.MaxLines,
		LockDrift:        string(cfg.LockDrift),
		PhaseTimeout:     cfg.PhaseTimeout,
		StrictValidation: cfg.Validate.Strict,
	}
}

// isLocked probes the spec's advisory lock without blocking: a failed
// non-blocking acquisition means another process currently holds it.
func isLocked(root *sandbox.Root) bool {
	l := lock.New(root.Base())
	err := l.Acquire(false, 0)
	if err != nil {
		var contention *lock.ContentionError
		return errors.As(err, &contention)
	}
	_ = l.Release()
	return false
}

// latestOutputHashes walks every receipt earliest-first, collecting the
// most recently recorded canonicalized hash per artifact name: a later
// receipt's entry for a name overwrites an earlier one.
func latestOutputHashes(receipts *receipt.Store) (map[string]string, error) {
	all, err := receipts.List()
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string)
	for _, r := range all {
		for _, out := range r.Outputs {
			hashes[out.Path] = out.BLAKE3Canonicalized
		}
	}
	return hashes, nil
}

func pendingFixupCount(store *artifact.Store) int {
	done, err := store.PhaseCompleted(phase.ExpectedArtifacts(phase.Review))
	if err != nil || !done {
		return 0
	}
	fixupDone, err := store.PhaseCompleted(phase.ExpectedArtifacts(phase.Fixup))
	if err != nil {
		return 0
	}
	if fixupDone {
		return 0
	}
	return 1
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, id, err := specRoot()
	if err != nil {
		return err
	}
	store := artifact.NewStore(root, "artifacts")
	receipts := receipt.NewStore(root, "receipts")

	states, err := phaseStates(store)
	if err != nil {
		return err
	}
	names, err := store.List()
	if err != nil {
		return err
	}
	hashes, err := latestOutputHashes(receipts)
	if err != nil {
		return err
	}
	artifacts := make([]encode.ArtifactInfo, 0, len(names))
	for _, name := range names {
		artifacts = append(artifacts, encode.ArtifactInfo{Name: name, BLAKE3: hashes[name]})
	}

	status := encode.BuildStatus(id, states, artifacts, configInfo(), pendingFixupCount(store), isLocked(root))
	out, err := encode.EncodeStatus(status, redactor)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	root, id, err := specRoot()
	if err != nil {
		return err
	}
	store := artifact.NewStore(root, "artifacts")

	names, err := store.List()
	if err != nil {
		return err
	}

	_, specErr := os.Stat(filepath.Join(root.Base(), "source", "00-problem-statement.md"))
	specExists := specErr == nil

	latest := ""
	nextPhase := string(phase.Final)
	nextSteps := []string{"nothing left to run; every phase has completed"}
	for _, pid := range phase.Order {
		if pid == phase.Final {
			continue
		}
		done, err := store.PhaseCompleted(phase.ExpectedArtifacts(pid))
		if err != nil {
			return err
		}
		if done {
			latest = string(pid)
			continue
		}
		nextPhase = string(pid)
		nextSteps = []string{fmt.Sprintf("run-phase %s", pid)}
		break
	}

	resume := encode.BuildResume(id, nextPhase, names, specExists, latest, nextSteps)
	out, err := encode.EncodeResume(resume, redactor)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runSpec(cmd *cobra.Command, args []string) error {
	root, id, err := specRoot()
	if err != nil {
		return err
	}
	store := artifact.NewStore(root, "artifacts")

	states, err := phaseStates(store)
	if err != nil {
		return err
	}

	spec := encode.BuildSpec(id, states, configInfo())
	out, err := encode.EncodeSpec(spec, redactor)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runGate(cmd *cobra.Command, args []string) error {
	root, id, err := specRoot()
	if err != nil {
		return err
	}
	store := artifact.NewStore(root, "artifacts")
	receipts := receipt.NewStore(root, "receipts")

	conditions := []string{"all_phases_succeeded", "no_failed_receipts"}
	var failures []string

	for _, pid := range phase.Order {
		if pid == phase.Final {
			continue
		}
		done, err := store.PhaseCompleted(phase.ExpectedArtifacts(pid))
		if err != nil {
			return err
		}
		if !done {
			failures = append(failures, fmt.Sprintf("phase %s has not completed", pid))
		}
	}

	all, err := receipts.List()
	if err != nil {
		return err
	}
	for _, r := range all {
		if r.ExitCode != 0 {
			failures = append(failures, fmt.Sprintf("receipt for phase %s exited %d at %s", r.Phase, r.ExitCode, r.EmittedAt))
		}
	}

	summary := "all conditions passed"
	if len(failures) > 0 {
		summary = fmt.Sprintf("%d condition(s) failed", len(failures))
	}

	gate := encode.BuildGate(id, conditions, failures, summary)
	out, err := encode.EncodeGate(gate, redactor)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !gate.Passed {
		return errs.New(errs.CategoryValidation, "gate conditions failed", summary)
	}
	return nil
}
