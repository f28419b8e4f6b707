package fixup

import (
	"os"

	"xchecker/internal/sandbox"
)

// ChangeSummary is one target file's projected effect from Preview mode.
type ChangeSummary struct {
	HunkCount        int
	LinesAdded       int
	LinesRemoved     int
	ValidationPassed bool
	Messages         []string
}

// FixupPreview aggregates every diff's projected effect without writing
// anything.
type FixupPreview struct {
	TargetFiles   []string
	ChangeSummary map[string]ChangeSummary
	Warnings      []string
	AllValid      bool
}

// Preview validates every diff against a read-only, in-memory copy of its
// target and reports what would change, without touching disk. Line
// endings are normalized to LF before counting, per the apply-mode
// procedure's own normalization.
func Preview(root *sandbox.Root, diffs []*FileDiff) FixupPreview {
	preview := FixupPreview{
		ChangeSummary: make(map[string]ChangeSummary),
		AllValid:      true,
	}

	for _, fd := range diffs {
		summary := previewOne(root, fd)
		preview.TargetFiles = append(preview.TargetFiles, fd.TargetPath)
		preview.ChangeSummary[fd.TargetPath] = summary
		if !summary.ValidationPassed {
			preview.AllValid = false
		}
		for _, m := range summary.Messages {
			preview.Warnings = append(preview.Warnings, fd.TargetPath+": "+m)
		}
	}

	return preview
}

func previewOne(root *sandbox.Root, fd *FileDiff) ChangeSummary {
	summary := ChangeSummary{HunkCount: len(fd.Hunks)}
	for _, h := range fd.Hunks {
		for _, l := range h.Lines {
			switch l.Kind {
			case '+':
				summary.LinesAdded++
			case '-':
				summary.LinesRemoved++
			}
		}
	}

	path, err := root.Join(fd.TargetPath)
	if err != nil {
		summary.Messages = append(summary.Messages, "sandbox rejected target path: "+err.Error())
		return summary
	}

	original, err := os.ReadFile(path.AsPath())
	if err != nil {
		summary.Messages = append(summary.Messages, "could not read original content: "+err.Error())
		return summary
	}
	originalContent := normalizeLineEndings(string(original))

	newContent, err := applyHunks(originalContent, fd.Hunks)
	if err != nil {
		summary.Messages = append(summary.Messages, err.Error())
		return summary
	}

	if !defaultEngine.changed(originalContent, newContent) {
		summary.Messages = append(summary.Messages, "hunk application produced no net change")
		return summary
	}
	if !defaultEngine.idempotent(newContent) {
		summary.Messages = append(summary.Messages, "projected result failed idempotence check")
		return summary
	}

	summary.ValidationPassed = true
	return summary
}
