package monitor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/pipeline"
)

// Command creates the monitor command, the long-running daemon mode.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor zones continuously",
		Long:  "Start the scheduler: refresh high-priority zones on the fast cadence and all zones on the slow one, serving status over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runMonitor(settings *conf.Settings) error {
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

	return p.RunDaemon(ctx)
}

// setupFlags configures flags specific to the monitor command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Monitor.PrioritySweep, "prioritysweep", viper.GetInt("monitor.prioritysweep"), "High-priority sweep interval in minutes")
	cmd.Flags().IntVar(&settings.Monitor.FullSweep, "fullsweep", viper.GetInt("monitor.fullsweep"), "Full sweep interval in minutes")
	cmd.Flags().BoolVar(&settings.API.Enabled, "api", viper.GetBool("api.enabled"), "Enable the HTTP status endpoint")
	cmd.Flags().StringVar(&settings.API.Listen, "listen", viper.GetString("api.listen"), "Listen address and port of the status endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
