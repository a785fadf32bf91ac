// Package cli provides centralized command registration.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/andrei-cloud/go_memtest/internal/commands/cli/fault"
	"github.com/andrei-cloud/go_memtest/internal/commands/cli/scenario"
	"github.com/andrei-cloud/go_memtest/internal/commands/cli/server"
)

// RegisterCommands registers all root commands.
func RegisterCommands(root *cobra.Command) error {
	root.AddCommand(server.NewServeCommand())
	root.AddCommand(fault.NewFaultCommand())
	root.AddCommand(scenario.NewScenarioCommand())

	return nil
}
