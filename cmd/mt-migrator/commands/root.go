package commands

import (
	"context"

	"github.com/Maksumys/mt-migrator/internal/config"
	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
)

// examples:
// ./mt-migrator discover --config ./mt-migrator.yaml
// ./mt-migrator start -c ./mt-migrator.yaml
// ./mt-migrator info -c ./mt-migrator.yaml -o json

var (
	flagConfig       string
	flagOutputFormat string

	rootCmd = &cobra.Command{
		Use:           "mt-migrator",
		Short:         "Coordinates schema migrations of multi-tenant persistence units",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "mt-migrator.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&flagOutputFormat, "output", "o", "yaml", "Output format (yaml|json)")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(discoverCmd)
}

// Execute executes the root command.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errorx.IllegalArgument.New("context is required")
	}

	_, err := rootCmd.ExecuteContextC(ctx)
	return err
}

func loadSettings() (config.Settings, error) {
	return config.Load(flagConfig)
}
