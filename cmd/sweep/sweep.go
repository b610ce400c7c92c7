package sweep

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/monitor"
	"github.com/satwatch/satwatch-go/internal/pipeline"
)

// Command creates the sweep command, a one-shot refresh cycle.
func Command(settings *conf.Settings) *cobra.Command {
	var priorityOnly bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single refresh cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(settings, priorityOnly)
		},
	}

	cmd.Flags().BoolVar(&priorityOnly, "priority", false, "Sweep only high-priority zones")

	return cmd
}

func runSweep(settings *conf.Settings, priorityOnly bool) error {
	if err := conf.ValidateProviderCredentials(settings); err != nil {
		return err
	}

	p, err := pipeline.Build(settings)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kind := monitor.SweepFull
	if priorityOnly {
		kind = monitor.SweepPriority
	}
	return p.RunSweep(ctx, kind)
}
