package commands

import (
	"github.com/spf13/cobra"
)

var (
	flagUnits []string

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Run the configured start actions",
		Long:  "Run clean, validate, baseline, repair and migrate, as configured, for every unit or the selected ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			manager, pool, err := newManager(settings)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := manager.Prepare(); err != nil {
				return err
			}
			if len(flagUnits) == 0 {
				return manager.StartAll(cmd.Context())
			}
			for _, unit := range flagUnits {
				if err := manager.StartActions(cmd.Context(), unit); err != nil {
					return err
				}
			}
			return nil
		},
	}
)

func init() {
	startCmd.Flags().StringSliceVarP(&flagUnits, "unit", "u", nil, "units to start, all when omitted")
}
