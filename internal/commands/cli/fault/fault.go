// Package fault provides fault-injection CLI commands.
package fault

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andrei-cloud/go_memtest/internal/logging"
	"github.com/andrei-cloud/go_memtest/pkg/faultsim"
	"github.com/andrei-cloud/go_memtest/pkg/memsys"
)

// NewFaultCommand creates the fault command group.
func NewFaultCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fault",
		Short: "Run allocation fault-injection experiments locally",
		Long: `Drive the fault-injection allocator shim in-process: configure a failure
schedule, perform a run of allocations, and report which attempts failed.`,
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newConsoleCommand())

	return cmd
}

// marchParams configures one allocation march.
type marchParams struct {
	delay  int
	repeat int
	allocs int
	size   int
	benign bool
}

// marchResult is the outcome of one allocation attempt.
type marchResult struct {
	attempt int
	failed  bool
	pending int
}

// marchReport summarizes a completed march.
type marchReport struct {
	results  []marchResult
	failures int
	benign   int
}

// runMarch installs the shim, performs the configured allocations, and
// restores the previous allocator.
func runMarch(p marchParams) (marchReport, error) {
	inj := faultsim.New()
	if err := inj.Install(true); err != nil {
		return marchReport{}, err
	}
	defer func() {
		_ = inj.Install(false)
	}()

	inj.Config(p.delay, p.repeat)

	if p.benign {
		memsys.BeginBenign()
		defer memsys.EndBenign()
	}

	report := marchReport{results: make([]marchResult, 0, p.allocs)}
	for i := 1; i <= p.allocs; i++ {
		buf := memsys.Alloc(p.size)
		res := marchResult{attempt: i, failed: buf == nil, pending: inj.Pending()}
		if res.failed {
			logging.LogFault(inj.Failures(), inj.BenignFailures(), inj.Pending())
		} else {
			memsys.Free(buf)
		}
		report.results = append(report.results, res)
	}

	report.failures = inj.Failures()
	report.benign = inj.BenignFailures()

	return report, nil
}

// formatReport renders a march report as text.
func formatReport(p marchParams, r marchReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "march: delay=%d repeat=%d allocs=%d size=%d benign=%t\n",
		p.delay, p.repeat, p.allocs, p.size, p.benign)

	for _, res := range r.results {
		outcome := "ok"
		if res.failed {
			outcome = "FAIL"
		}
		fmt.Fprintf(&b, "  #%02d alloc(%d) -> %-4s pending=%d\n",
			res.attempt, p.size, outcome, res.pending)
	}

	fmt.Fprintf(&b, "failures=%d benign=%d\n", r.failures, r.benign)

	return b.String()
}

func newRunCommand() *cobra.Command {
	var params marchParams

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one allocation march against the fault shim",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logLevel := strings.TrimSpace(strings.ToLower(viper.GetString("log.level")))
			logFormat := strings.TrimSpace(strings.ToLower(viper.GetString("log.format")))
			logging.InitLogger(logLevel == "debug", logFormat == "human")

			report, err := runMarch(params)
			if err != nil {
				return fmt.Errorf("failed to run march: %w", err)
			}

			cmd.Print(formatReport(params, report))

			return nil
		},
	}

	cmd.Flags().IntVar(&params.delay, "delay", 0, "successful allocations before the first failure (-1 disarms)")
	cmd.Flags().IntVar(&params.repeat, "repeat", 1, "number of consecutive failures")
	cmd.Flags().IntVar(&params.allocs, "allocs", 10, "allocations to attempt")
	cmd.Flags().IntVar(&params.size, "size", 64, "bytes per allocation")
	cmd.Flags().BoolVar(&params.benign, "benign", false, "run the march inside a benign region")

	return cmd
}
