package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/normgraph/normgraph/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store health and statistics",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	manager := a.newManager()

	health := manager.Health(ctx)
	fmt.Printf("Health: %s  %s\n", colorState(health.State), health.Message)
	printSubsystem("vector store", a.vectors.Health(ctx))
	printSubsystem("graph store", a.graph.Health(ctx))
	printSubsystem("embedder", a.embedder.Health(ctx))

	stats, err := manager.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("Sources:       %d\n", stats.Sources)
	fmt.Printf("Chunks:        %d\n", stats.Chunks)
	fmt.Printf("Controls:      %d\n", stats.Controls)
	fmt.Printf("Relationships: %d\n", stats.Relationships)
	return nil
}

func printSubsystem(name string, hs types.HealthStatus) {
	fmt.Printf("  %-14s %s  %s\n", name, colorState(hs.State), hs.Message)
}

func colorState(state types.HealthState) string {
	switch state {
	case types.HealthStateHealthy:
		return color.GreenString(string(state))
	case types.HealthStateDegraded:
		return color.YellowString(string(state))
	default:
		return color.RedString(string(state))
	}
}
