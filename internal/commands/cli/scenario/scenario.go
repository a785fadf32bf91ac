// Package scenario provides WASM scenario CLI commands.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andrei-cloud/go_memtest/internal/harness"
	"github.com/andrei-cloud/go_memtest/internal/scenarios"
	"github.com/andrei-cloud/go_memtest/pkg/faultsim"
)

// NewScenarioCommand creates the scenario command group.
func NewScenarioCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Inspect and run WASM test scenarios",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newRunCommand())

	return cmd
}

// scenarioDir resolves the scenario directory from configuration, falling
// back to a directory next to the binary.
func scenarioDir() (string, error) {
	dir := viper.GetString("scenario.path")
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	return filepath.Join(filepath.Dir(exePath), "scenarios"), nil
}

// newRuntime builds a scenario manager around the given injector with a
// standalone pointer registry for CLI use.
func newRuntime(
	cmd *cobra.Command,
	dir string,
	inj *faultsim.Injector,
) (*scenarios.Manager, error) {
	manager := scenarios.NewManager(cmd.Context(), inj, harness.NewPointerMap())
	if err := manager.LoadAll(dir); err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}

	return manager, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded scenarios",
		Long:  `List all WASM test scenarios found in the scenario directory.`,
		RunE:  runListScenarios,
	}
}

func runListScenarios(cmd *cobra.Command, _ []string) error {
	// Disable logging for CLI commands.
	log.Logger = log.Logger.Level(zerolog.Disabled)

	dir, err := scenarioDir()
	if err != nil {
		return err
	}

	manager, err := newRuntime(cmd, dir, faultsim.New())
	if err != nil {
		return err
	}
	defer func() {
		_ = manager.Close()
	}()

	// Create tabwriter for aligned output.
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "Scenario\tDescription")
	_, _ = fmt.Fprintln(w, "--------\t-----------")

	for _, name := range manager.Names() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", name, manager.GetDescription(name))
	}

	return w.Flush()
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run NAME [INPUT...]",
		Short: "Run one scenario by name",
		Long: `Run a WASM test scenario in-process with a standalone fault injector.
Remaining arguments are passed to the scenario as its input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScenario,
	}
}

func runScenario(cmd *cobra.Command, args []string) error {
	// Disable logging for CLI commands.
	log.Logger = log.Logger.Level(zerolog.Disabled)

	dir, err := scenarioDir()
	if err != nil {
		return err
	}

	// Install the fault shim so scenarios exercising the fault host
	// functions see an armed allocator.
	inj := faultsim.New()
	if err := inj.Install(true); err != nil {
		return fmt.Errorf("failed to install fault layer: %w", err)
	}
	defer func() {
		_ = inj.Install(false)
	}()

	manager, err := newRuntime(cmd, dir, inj)
	if err != nil {
		return err
	}
	defer func() {
		_ = manager.Close()
	}()

	input := strings.Join(args[1:], " ")
	out, err := manager.Execute(args[0], []byte(input))
	if err != nil {
		return fmt.Errorf("scenario %s failed: %w", args[0], err)
	}

	cmd.Println(string(out))

	return nil
}
