// Package lock provides the per-spec exclusive advisory file lock and its
// drift check against the model/CLI versions recorded on first successful
// phase, mirroring the single-writer-per-spec concurrency model.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"xchecker/internal/xlog"
)

// DriftMode controls whether a lockfile/CLI mismatch is a warning or fatal.
type DriftMode string

const (
	DriftWarn   DriftMode = "warn"
	DriftStrict DriftMode = "strict"
)

// Pins is the content of lock.yaml: the model and CLI versions recorded on
// the first successful phase of a spec.
type Pins struct {
	ModelFullName string `yaml:"model_full_name"`
	LLMCLIVersion string `yaml:"llm_cli_version"`
}

// Drift describes a mismatch between recorded pins and the current run.
type Drift struct {
	Field    string
	Recorded string
	Current  string
}

func (d Drift) String() string {
	return fmt.Sprintf("%s drift: recorded=%q current=%q", d.Field, d.Recorded, d.Current)
}

// ContentionError is returned when the lock is already held by another
// process and is not stale.
type ContentionError struct {
	LockPath string
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock: %s is held by another process", e.LockPath)
}

// Lock wraps an exclusive flock.Flock scoped to one spec workspace,
// alongside the lock.yaml pin file living alongside it.
type Lock struct {
	flock    *flock.Flock
	lockPath string
	pinsPath string
}

// New returns a Lock for the given spec directory; lockPath is
// "<specDir>/lock" and the pins file is "<specDir>/lock.yaml".
func New(specDir string) *Lock {
	return &Lock{
		flock:    flock.New(filepath.Join(specDir, "lock")),
		lockPath: filepath.Join(specDir, "lock"),
		pinsPath: filepath.Join(specDir, "lock.yaml"),
	}
}

// Acquire takes the exclusive lock. If force is true and the existing lock
// is older than staleAfter, it is removed before the acquisition attempt.
// Returns *ContentionError if the lock is held and not stale/forced.
func (l *Lock) Acquire(force bool, staleAfter time.Duration) error {
	log := xlog.Get(xlog.CategoryLock)

	if force {
		if info, err := os.Stat(l.lockPath); err == nil && time.Since(info.ModTime()) > staleAfter {
			log.Warn("removing stale lock %s (age %v > %v)", l.lockPath, time.Since(info.ModTime()), staleAfter)
			_ = os.Remove(l.lockPath)
		}
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock: acquire %s: %w", l.lockPath, err)
	}
	if !ok {
		return &ContentionError{LockPath: l.lockPath}
	}

	log.Info("lock acquired: %s", l.lockPath)
	return nil
}

// Release unlocks the lock. Safe to call even if Acquire was never called.
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	xlog.Get(xlog.CategoryLock).Info("lock released: %s", l.lockPath)
	return l.flock.Unlock()
}

// RecordPins writes lock.yaml if it does not already exist, pinning the
// current model/CLI versions for future drift checks.
func (l *Lock) RecordPins(pins Pins) error {
	if _, err := os.Stat(l.pinsPath); err == nil {
		return nil // already pinned on an earlier successful phase
	}
	data, err := yaml.Marshal(pins)
	if err != nil {
		return fmt.Errorf("lock: marshal pins: %w", err)
	}
	if err := os.WriteFile(l.pinsPath, data, 0o644); err != nil {
		return fmt.Errorf("lock: write pins: %w", err)
	}
	xlog.Get(xlog.CategoryLock).Info("pins recorded: %+v", pins)
	return nil
}

// CheckDrift compares recorded pins (if any) against current, returning
// every mismatching field. No pins file means no drift (first run).
func (l *Lock) CheckDrift(current Pins) ([]Drift, error) {
	data, err := os.ReadFile(l.pinsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock: read pins: %w", err)
	}

	var recorded Pins
	if err := yaml.Unmarshal(data, &recorded); err != nil {
		return nil, fmt.Errorf("lock: parse pins: %w", err)
	}

	var drifts []Drift
	if recorded.ModelFullName != "" && recorded.ModelFullName != current.ModelFullName {
		drifts = append(drifts, Drift{Field: "model_full_name", Recorded: recorded.ModelFullName, Current: current.ModelFullName})
	}
	if recorded.LLMCLIVersion != "" && recorded.LLMCLIVersion != current.LLMCLIVersion {
		drifts = append(drifts, Drift{Field: "llm_cli_version", Recorded: recorded.LLMCLIVersion, Current: current.LLMCLIVersion})
	}
	return drifts, nil
}

// DriftError is returned by HandleDrift under strict mode when drift is
// detected.
type DriftError struct {
	Drifts []Drift
}

func (e *DriftError) Error() string {
	msg := "lock: drift detected under strict mode:"
	for _, d := range e.Drifts {
		msg += " " + d.String() + ";"
	}
	return msg
}

// HandleDrift logs every drift as a warning under DriftWarn, or returns a
// *DriftError under DriftStrict.
func HandleDrift(mode DriftMode, drifts []Drift) error {
	if len(drifts) == 0 {
		return nil
	}
	log := xlog.Get(xlog.CategoryLock)
	for _, d := range drifts {
		log.Warn("%s", d.String())
	}
	if mode == DriftStrict {
		return &DriftError{Drifts: drifts}
	}
	return nil
}
