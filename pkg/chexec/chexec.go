// Package chexec implements the caller side of the external
// Contraction-Hierarchies constructor contract: an out-of-process
// collaborator invoked as `binary input.fmi output.fmi
// --contraction-ratio R --threads N [--print-ids]`, awaited to exit 0,
// whose output `fmi` file is then reloaded.
package chexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"osmgraph/pkg/config"
	"osmgraph/pkg/errs"
	"osmgraph/pkg/fmi"
	"osmgraph/pkg/graph"
)

// Run writes g to a temporary input fmi file, invokes the configured
// external CH constructor on it, and reloads its output as a new Graph
// carrying CH augmentation. The caller's write/parse column layout must
// describe the same schema on both ends of the round trip.
func Run(ctx context.Context, cfg *config.CHConstructorConfig, writeCfg config.GraphWriteConfig, parseCfg *config.ParsingConfig, g *graph.Graph) (*graph.Graph, error) {
	dir, err := os.MkdirTemp("", "chexec-")
	if err != nil {
		return nil, &errs.IoError{Path: dir, Err: err}
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.fmi")
	outputPath := filepath.Join(dir, "output.fmi")

	if err := fmi.WriteFile(inputPath, g, writeCfg); err != nil {
		return nil, err
	}

	args := []string{
		inputPath,
		outputPath,
		"--contraction-ratio", strconv.FormatFloat(cfg.ContractionRatio, 'f', -1, 64),
		"--threads", strconv.Itoa(cfg.Threads),
	}
	if cfg.PrintIDs {
		args = append(args, "--print-ids")
	}

	cmd := exec.CommandContext(ctx, cfg.Binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, &errs.ExternalToolFailed{Tool: cfg.Binary, ExitCode: exitCode}
	}

	raw, err := fmi.ReadFile(outputPath, parseCfg)
	if err != nil {
		return nil, err
	}
	return graph.Build(raw)
}
