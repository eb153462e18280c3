package main

import (
	"github.com/Wyydra/nexuscall/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "nexuscall",
		Short: "Nexus call session server",
		Long: `nexuscall runs the call session backend of the Nexus dashboard.

Each user gets one call session driven over REST or a WebSocket. Call events
(status, controls, duration, alerts) are pushed to every socket of the user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newConfigCmd(&configPath))
	return root
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging the file, NEXUSCALL_* environment
variables and defaults.

Examples:
  nexuscall config
  nexuscall config -c nexuscall.yaml
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{"nexuscall": cfg}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
