package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"xchecker/internal/llm"
	"xchecker/internal/orchestrator"
	"xchecker/internal/phase"
)

var runPhaseCmd = &cobra.Command{
	Use:   "run-phase <requirements|design|tasks|review|fixup|final>",
	Short: "Run one phase of the spec workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunPhase,
}

// runRunPhase drives orchestrator.RunPhase for the named phase. This core
// ships only llm.EchoClient, the in-process fixture; a real llm.Client that
// spawns the external LLM subprocess is the deployment's responsibility to
// wire in, the same boundary codeNERD draws between its logic kernel and
// its model transducer.
func runRunPhase(cmd *cobra.Command, args []string) error {
	id := phase.ID(args[0])

	root, specID, err := specRoot()
	if err != nil {
		return err
	}

	client := llm.Client(llm.NewEchoClient(cfg.ModelFullName, cfg.LLMCLIVersion))

	orch := orchestrator.New(root, specID, cfg, client, redactor)

	result, err := orch.RunPhase(context.Background(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "phase %s complete: exit_code=%d next_step=%s receipt=%s\n",
		result.Phase, result.ExitCode, result.NextStep.Kind, result.ReceiptPath)
	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}
	return nil
}
