package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satwatch/satwatch-go/cmd/monitor"
	"github.com/satwatch/satwatch-go/cmd/sweep"
	"github.com/satwatch/satwatch-go/cmd/zones"
	"github.com/satwatch/satwatch-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "satwatch",
		Short: "SatWatch CLI",
		Long:  "Satellite imagery monitor: keeps a fresh image cached for every registered zone.",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	// Add sub-commands to the root command.
	subcommands := []*cobra.Command{
		monitor.Command(settings),
		sweep.Command(settings),
		zones.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines command line flags shared by all subcommands, bound to
// their viper keys so flags override the config file.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	cmd.PersistentFlags().IntVar(&settings.Monitor.Workers, "workers", viper.GetInt("monitor.workers"), "Number of concurrent zone workers")
	cmd.PersistentFlags().Float64Var(&settings.Monitor.MaxCloudCover, "maxcloudcover", viper.GetFloat64("monitor.maxcloudcover"), "Maximum acceptable cloud cover percentage")
	cmd.PersistentFlags().IntVar(&settings.Monitor.LookbackDays, "lookback", viper.GetInt("monitor.lookbackdays"), "Catalog search window in days")
	cmd.PersistentFlags().StringVar(&settings.Imagery.ExportPath, "exportpath", viper.GetString("imagery.exportpath"), "Directory for cached image artifacts")

	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
