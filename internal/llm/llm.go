// Package llm defines the boundary between the orchestrator and the
// external LLM process it drives. The core is agnostic to transport; this
// package only specifies the contract and ships a fixture implementation
// for self-tests.
package llm

import (
	"context"
	"strings"
	"time"
)

// Runner identifies the environment the LLM subprocess ran under.
type Runner string

const (
	RunnerNative Runner = "native"
	RunnerWSL    Runner = "wsl"
)

// Result is what a Client returns for one invocation.
type Result struct {
	Completion   string
	ExitCode     int
	Stderr       string
	Runner       Runner
	RunnerDistro string
	ModelAlias   string
	ModelFullName string
	CLIVersion   string
	Duration     time.Duration
}

// Client is the external LLM collaborator's interface: given a prompt and a
// context packet, it returns a completion, an exit code, and a runner
// descriptor. Implementations own process spawn, transport, and timeout
// enforcement around ctx.
type Client interface {
	Run(ctx context.Context, prompt, packet string) (Result, error)
}

// EchoClient is an in-process fixture Client: it returns the packet's
// content (optionally prefixed) as the completion, unconditionally
// succeeding. Used by self-tests and by XCHECKER_SUPPRESS_LLM runs.
type EchoClient struct {
	ModelFullName string
	CLIVersion    string
	Prefix        string
}

// NewEchoClient builds an EchoClient identifying itself with the given
// model/CLI version strings.
func NewEchoClient(modelFullName, cliVersion string) *EchoClient {
	return &EchoClient{ModelFullName: modelFullName, CLIVersion: cliVersion}
}

// Run returns packet (trimmed, optionally prefixed) as the completion, exit
// code 0, no stderr.
func (c *EchoClient) Run(ctx context.Context, prompt, packet string) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	completion := strings.TrimSpace(packet)
	if c.Prefix != "" {
		completion = c.Prefix + completion
	}

	return Result{
		Completion:    completion,
		ExitCode:      0,
		Runner:        RunnerNative,
		ModelAlias:    "echo",
		ModelFullName: c.ModelFullName,
		CLIVersion:    c.CLIVersion,
	}, nil
}
