package commands

import (
	"github.com/spf13/cobra"
)

type unitResources struct {
	Unit      string   `json:"unit" yaml:"unit"`
	Locations []string `json:"locations" yaml:"locations"`
}

type discovery struct {
	Units             []unitResources `json:"units" yaml:"units"`
	WithMigrations    []string        `json:"withMigrations" yaml:"withMigrations"`
	MissingMigrations []string        `json:"missingMigrations" yaml:"missingMigrations"`
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the migration resources found for every unit",
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

		snapshot, err := manager.Snapshot()
		if err != nil {
			return err
		}

		result := discovery{
			WithMigrations:    snapshot.Facts().WithMigrations(),
			MissingMigrations: snapshot.Facts().MissingMigrations(),
		}
		for _, unit := range snapshot.Units() {
			result.Units = append(result.Units, unitResources{
				Unit:      unit,
				Locations: snapshot.LocationsFor(unit),
			})
		}
		return printOutput(cmd, result)
	},
}
