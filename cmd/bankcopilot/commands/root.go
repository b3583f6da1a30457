package commands

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/bankcopilot/config"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bankcopilot",
		Short:         "Multi-agent banking assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				c.Log.Level = logLevel
			}
			cfg = c
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	root.AddCommand(serveCmd(), chatCmd(), seedCmd())
	return root
}
