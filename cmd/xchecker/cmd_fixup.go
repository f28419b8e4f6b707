package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"xchecker/internal/errs"
	"xchecker/internal/fixup"
	"xchecker/internal/phase"
)

var previewFixupCmd = &cobra.Command{
	Use:   "preview-fixup",
	Short: "Validate the fixup diffs carried by the latest Review output, without writing anything",
	RunE:  runPreviewFixup,
}

var applyFixupCmd = &cobra.Command{
	Use:   "apply-fixup",
	Short: "Apply the fixup diffs carried by the latest Review output",
	RunE:  runApplyFixup,
}

// loadReviewDiffs reads the promoted Review artifact, extracts every fenced
// diff block following a fixup marker, and parses them. It returns an error
// only for an unreadable artifact; diffs that fail to parse are reported as
// messages alongside whatever parsed cleanly.
func loadReviewDiffs() ([]*fixup.FileDiff, []string, error) {
	root, _, err := specRoot()
	if err != nil {
		return nil, nil, err
	}

	reviewMD := phase.ArtifactPrefix[phase.Review] + "-" + string(phase.Review) + ".md"
	data, err := os.ReadFile(filepath.Join(root.Base(), "artifacts", reviewMD))
	if err != nil {
		return nil, nil, errs.Wrap(errs.CategorySource, err, "could not read review artifact", reviewMD)
	}

	text := string(data)
	if !fixup.HasMarker(text) {
		return nil, nil, nil
	}

	blocks := fixup.ExtractDiffBlocks(text)
	diffs, messages := fixup.ParseAll(blocks)
	return diffs, messages, nil
}

func runPreviewFixup(cmd *cobra.Command, args []string) error {
	root, _, err := specRoot()
	if err != nil {
		return err
	}

	diffs, messages, err := loadReviewDiffs()
	if err != nil {
		return err
	}
	for _, m := range messages {
		fmt.Fprintf(cmd.OutOrStdout(), "parse warning: %s\n", m)
	}
	if len(diffs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no fixup diffs found in the latest review output")
		return nil
	}

	preview := fixup.Preview(root, diffs)
	for _, target := range preview.TargetFiles {
		summary := preview.ChangeSummary[target]
		fmt.Fprintf(cmd.OutOrStdout(), "%s: hunks=%d +%d/-%d valid=%t\n",
			target, summary.HunkCount, summary.LinesAdded, summary.LinesRemoved, summary.ValidationPassed)
	}
	for _, w := range preview.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}
	if !preview.AllValid {
		return errs.New(errs.CategoryValidation, "one or more fixup diffs failed preview validation", fmt.Sprintf("%d target file(s)", len(preview.TargetFiles)))
	}
	return nil
}

func runApplyFixup(cmd *cobra.Command, args []string) error {
	root, _, err := specRoot()
	if err != nil {
		return err
	}

	diffs, messages, err := loadReviewDiffs()
	if err != nil {
		return err
	}
	for _, m := range messages {
		fmt.Fprintf(cmd.OutOrStdout(), "parse warning: %s\n", m)
	}
	if len(diffs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no fixup diffs found in the latest review output")
		return nil
	}

	result := fixup.Apply(root, diffs)
	for _, a := range result.AppliedFiles {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s (blake3=%s)\n", a.Path, a.BLAKE3First8)
	}
	for _, f := range result.FailedFiles {
		fmt.Fprintf(cmd.OutOrStdout(), "failed %s: %s\n", f.Path, f.Reason)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}

	if target, ok := fixup.InferRewindTarget(result); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "rewind target: %s\n", target)
	}

	if len(result.FailedFiles) > 0 {
		return errs.New(errs.CategoryPhaseExecution, "one or more fixup diffs failed to apply", fmt.Sprintf("%d of %d failed", len(result.FailedFiles), len(diffs)))
	}
	return nil
}
