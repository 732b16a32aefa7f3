package commands

import (
	mt "github.com/Maksumys/mt-migrator"
	"github.com/spf13/cobra"
)

type targetInfo struct {
	Unit           string `json:"unit" yaml:"unit"`
	Tenant         string `json:"tenant,omitempty" yaml:"tenant,omitempty"`
	CurrentVersion string `json:"currentVersion" yaml:"currentVersion"`
	Applied        int    `json:"applied" yaml:"applied"`
	Pending        int    `json:"pending" yaml:"pending"`
	Failed         int    `json:"failed" yaml:"failed"`
	Dirty          bool   `json:"dirty" yaml:"dirty"`
}

func newTargetInfo(info mt.Info) targetInfo {
	return targetInfo{
		Unit:           info.Target.Unit,
		Tenant:         info.Target.Tenant,
		CurrentVersion: info.CurrentVersion,
		Applied:        info.Applied,
		Pending:        info.Pending,
		Failed:         info.Failed,
		Dirty:          info.Dirty,
	}
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the migration state of every configured target",
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

		infos, err := manager.Info(cmd.Context())
		if err != nil {
			return err
		}
		result := make([]targetInfo, 0, len(infos))
		for _, info := range infos {
			result = append(result, newTargetInfo(info))
		}
		return printOutput(cmd, result)
	},
}
