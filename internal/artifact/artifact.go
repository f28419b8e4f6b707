// Package artifact stages and promotes per-phase outputs atomically: every
// artifact first lands under artifacts/.partial/ and is only visible under
// artifacts/ once promoted as a whole, after validation passes.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"xchecker/internal/atomicfile"
	"xchecker/internal/canon"
	"xchecker/internal/sandbox"
	"xchecker/internal/xlog"
)

// Artifact is one named, content-addressed output of a phase.
type Artifact struct {
	Name    string
	Content string
	Kind    canon.Kind
	BLAKE3  string // over canonicalized content
}

// New canonicalizes content per kind and computes its BLAKE3, returning the
// resulting Artifact.
func New(name, content string, kind canon.Kind) (Artifact, error) {
	canonical, err := canon.Normalize(content, kind)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: normalize %s: %w", name, err)
	}
	hash, err := canon.Hash(canonical, kind)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: hash %s: %w", name, err)
	}
	return Artifact{Name: name, Content: canonical, Kind: kind, BLAKE3: hash}, nil
}

const partialDir = ".partial"

// Store stages and promotes artifacts under artifactsDir (e.g.
// "artifacts") within a sandboxed root.
type Store struct {
	root         *sandbox.Root
	artifactsDir string
}

// NewStore constructs a Store rooted at root, writing under artifactsDir.
func NewStore(root *sandbox.Root, artifactsDir string) *Store {
	return &Store{root: root, artifactsDir: artifactsDir}
}

// Stage writes a to artifacts/.partial/<name> after verifying a.BLAKE3
// matches a fresh hash of a.Content.
func (s *Store) Stage(a Artifact) error {
	if err := s.verifyHash(a); err != nil {
		return err
	}
	rel := filepath.ToSlash(filepath.Join(s.artifactsDir, partialDir, a.Name))
	p, err := s.root.Join(rel)
	if err != nil {
		return fmt.Errorf("artifact: sandbox join partial %s: %w", a.Name, err)
	}
	if _, err := atomicfile.Write(p, []byte(a.Content)); err != nil {
		return fmt.Errorf("artifact: stage %s: %w", a.Name, err)
	}
	xlog.Get(xlog.CategoryArtifact).Debug("staged %s", a.Name)
	return nil
}

func (s *Store) verifyHash(a Artifact) error {
	fresh, err := canon.Hash(a.Content, a.Kind)
	if err != nil {
		return fmt.Errorf("artifact: verify hash %s: %w", a.Name, err)
	}
	if fresh != a.BLAKE3 {
		return fmt.Errorf("artifact: hash mismatch for %s: declared %s, computed %s", a.Name, a.BLAKE3, fresh)
	}
	return nil
}

// Promote moves every staged artifact in artifacts/.partial/ into
// artifacts/, directory-level, and clears the partial directory. Called
// only after the Validator has passed for the phase.
func (s *Store) Promote(names []string) error {
	log := xlog.Get(xlog.CategoryArtifact)
	for _, name := range names {
		partialRel := filepath.ToSlash(filepath.Join(s.artifactsDir, partialDir, name))
		finalRel := filepath.ToSlash(filepath.Join(s.artifactsDir, name))

		partialPath, err := s.root.Join(partialRel)
		if err != nil {
			return fmt.Errorf("artifact: sandbox join partial %s: %w", name, err)
		}
		finalPath, err := s.root.Join(finalRel)
		if err != nil {
			return fmt.Errorf("artifact: sandbox join final %s: %w", name, err)
		}

		content, err := os.ReadFile(partialPath.String())
		if err != nil {
			return fmt.Errorf("artifact: read staged %s: %w", name, err)
		}
		if _, err := atomicfile.Write(finalPath, content); err != nil {
			return fmt.Errorf("artifact: promote %s: %w", name, err)
		}
		if err := os.Remove(partialPath.String()); err != nil {
			log.Warn("could not remove staged copy of %s after promotion: %v", name, err)
		}
		log.Info("promoted %s", name)
	}
	return nil
}

// List returns the names of every promoted artifact under artifactsDir.
func (s *Store) List() ([]string, error) {
	dir := filepath.Join(s.root.Base(), filepath.FromSlash(s.artifactsDir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// PhaseCompleted reports whether every name in expected is present among
// the promoted artifacts.
func (s *Store) PhaseCompleted(expected []string) (bool, error) {
	names, err := s.List()
	if err != nil {
		return false, err
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	for _, want := range expected {
		if !have[want] {
			return false, nil
		}
	}
	return true, nil
}

// PhaseArtifactPrefixes maps a phase id to its artifact ordering prefix,
// e.g. "requirements" -> "00", "design" -> "10".
var PhaseArtifactPrefixes = map[string]string{
	"requirements": "00",
	"design":       "10",
	"tasks":        "20",
	"review":       "30",
	"fixup":        "40",
}

// GetLatestCompletedPhase returns the id of the latest phase (in
// Requirements..Fixup order) whose expected artifacts are all promoted, or
// "" if none are.
func GetLatestCompletedPhase(s *Store, order []string) (string, error) {
	latest := ""
	for _, phase := range order {
		prefix, ok := PhaseArtifactPrefixes[phase]
		if !ok {
			continue
		}
		expected := []string{
			fmt.Sprintf("%s-%s.md", prefix, phase),
			fmt.Sprintf("%s-%s.core.yaml", prefix, phase),
		}
		done, err := s.PhaseCompleted(expected)
		if err != nil {
			return "", err
		}
		if !done {
			break
		}
		latest = phase
	}
	return latest, nil
}
