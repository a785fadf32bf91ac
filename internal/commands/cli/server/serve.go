// Package server provides server-related CLI commands.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andrei-cloud/go_memtest/internal/config"
	"github.com/andrei-cloud/go_memtest/internal/harness"
	"github.com/andrei-cloud/go_memtest/internal/logging"
	"github.com/andrei-cloud/go_memtest/internal/scenarios"
	"github.com/andrei-cloud/go_memtest/internal/server"
	"github.com/andrei-cloud/go_memtest/pkg/faultsim"
	"github.com/andrei-cloud/go_memtest/pkg/memsys"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the test harness server",
		Long:  `Start the memory test harness server to process allocation and fault-injection commands over TCP.`,
		RunE:  runServe,
	}

	// Add serve command specific flags that can override config.
	cmd.Flags().String("host", "localhost", "Server host")
	cmd.Flags().Int("port", 7700, "Server port")

	// Bind serve command flags to viper.
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Get configuration.
	cfg := config.Get()

	// Normalize log level and format from viper/config.
	logLevel := viper.GetString("log.level")
	logFormat := viper.GetString("log.format")
	logLevel = strings.TrimSpace(strings.ToLower(logLevel))
	logFormat = strings.TrimSpace(strings.ToLower(logFormat))

	// Initialize logger using config values (with CLI flags overriding config via viper).
	logging.InitLogger(
		logLevel == "debug",
		logFormat == "human",
	)

	// Build the command harness around a fresh fault injector.
	h := harness.New(faultsim.New())

	// Install the configured page pool as the active allocator; the PC
	// command can replace it at runtime.
	if cfg.Pool.PageSize > 0 && cfg.Pool.Pages > 0 {
		pool := memsys.NewPagePool(cfg.Pool.PageSize, cfg.Pool.Pages)
		memsys.SetMethods(pool.Methods())
		h.SetPagePool(pool)
		log.Info().
			Int("page_size", pool.PageSize()).
			Int("pages", cfg.Pool.Pages).
			Msg("page pool installed")
	}

	// Make sure scenario directory exists.
	if err := os.MkdirAll(cfg.Scenario.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create scenario directory: %v", err)
	}

	// Create a context that will be canceled when the server is stopping.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Initialize the scenario manager sharing the harness injector and
	// pointer registry.
	manager := scenarios.NewManager(ctx, h.Injector(), h.Pointers())
	if err := manager.LoadAll(cfg.Scenario.Path); err != nil {
		return fmt.Errorf("failed to load scenarios: %v", err)
	}
	defer manager.Close()

	h.SetScenarioRunner(manager)

	log.Debug().Msg("Loaded scenarios:")
	for _, name := range manager.Names() {
		log.Debug().
			Str("scenario", name).
			Str("description", manager.GetDescription(name)).
			Msg("scenario details")
	}

	// Initialize the server with configured host and port.
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv, err := server.NewServer(serverAddr, h)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %v", err)
	}

	// Reload scenarios on SIGHUP.
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGHUP)
	go func() {
		for range reloadChan {
			log.Info().Msg("reloading scenarios...")

			if err := manager.LoadAll(cfg.Scenario.Path); err != nil {
				log.Error().Err(err).Msg("failed to reload scenarios")

				continue
			}
			log.Info().Strs("scenarios", manager.Names()).Msg("scenarios reloaded")
		}
	}()

	defer signal.Stop(reloadChan)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %v", err)
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)

	<-stopChan
	log.Info().Msg("shutting down server...")

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	return nil
}
