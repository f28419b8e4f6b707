package fixup

import (
	"strings"

	"xchecker/internal/phase"
)

// rewindCandidates is the earliest-first order Rewind inference checks, the
// same order the phase DAG runs in.
var rewindCandidates = []phase.ID{phase.Requirements, phase.Design, phase.Tasks}

// InferRewindTarget reports the earliest phase whose name appears as a
// substring of any applied file's path, per the Fixup Engine's rewind
// determination rule. ok is false if no applied path names a phase.
func InferRewindTarget(result FixupResult) (phase.ID, bool) {
	for _, candidate := range rewindCandidates {
		for _, f := range result.AppliedFiles {
			if strings.Contains(f.Path, string(candidate)) {
				return candidate, true
			}
		}
	}
	return "", false
}
