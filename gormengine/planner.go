package gormengine

import (
	"container/list"
	"fmt"
	"sort"

	"github.com/Maksumys/mt-migrator/internal/models"
	"github.com/sirupsen/logrus"
)

type migrationsPlan struct {
	migrationsToRun *list.List
}

func newMigrationsPlan() migrationsPlan {
	return migrationsPlan{
		migrationsToRun: list.New(),
	}
}

func (p migrationsPlan) IsEmpty() bool {
	return p.migrationsToRun.Len() == 0
}

func (p migrationsPlan) Len() int {
	return p.migrationsToRun.Len()
}

func (p migrationsPlan) PopFirst() Migration {
	first := p.migrationsToRun.Front()
	p.migrationsToRun.Remove(first)
	return first.Value.(Migration)
}

type migratePlanner struct {
	logger          logrus.FieldLogger
	resolved        []Migration
	savedMigrations []models.MigrationModel
	targetVersion   *models.Version
}

// MakePlan orders pending versioned migrations by version, followed by the
// repeatable migrations whose checksum changed.
func (p *migratePlanner) MakePlan() migrationsPlan {
	plan := newMigrationsPlan()
	p.planMigrationsVersioned(&plan)
	p.planMigrationsRepeatable(&plan)
	return plan
}

func (p *migratePlanner) planMigrationsVersioned(plan *migrationsPlan) {
	current := currentVersion(p.savedMigrations)
	applied := make(map[models.Version]struct{})
	for _, saved := range p.savedMigrations {
		if saved.Type == models.TypeVersioned && saved.State == models.StateSuccess {
			applied[saved.Version] = struct{}{}
		}
	}

	versioned := make([]Migration, 0, len(p.resolved))
	for _, migration := range p.resolved {
		if migration.MigrationType == models.TypeVersioned {
			versioned = append(versioned, migration)
		}
	}
	sort.SliceStable(versioned, func(i, j int) bool {
		return versioned[j].Version.MoreThan(versioned[i].Version)
	})

	for _, migration := range versioned {
		if _, ok := applied[migration.Version]; ok {
			continue
		}
		if p.targetVersion != nil && migration.Version.MoreThan(*p.targetVersion) {
			continue
		}
		if current != nil && migration.Version.LessOrEqual(*current) {
			p.logger.Warn(fmt.Sprintf(
				"migration (version: %s) is older than the current version %s, ignoring",
				migration.Version, current))
			continue
		}
		plan.migrationsToRun.PushBack(migration)
	}
}

func (p *migratePlanner) planMigrationsRepeatable(plan *migrationsPlan) {
	latest := make(map[string]models.MigrationModel)
	for _, saved := range p.savedMigrations {
		if saved.Type == models.TypeRepeatable && saved.State == models.StateSuccess {
			latest[saved.Description] = saved
		}
	}

	repeatable := make([]Migration, 0)
	for _, migration := range p.resolved {
		if migration.MigrationType == models.TypeRepeatable {
			repeatable = append(repeatable, migration)
		}
	}
	sort.SliceStable(repeatable, func(i, j int) bool {
		return repeatable[i].Description < repeatable[j].Description
	})

	for _, migration := range repeatable {
		if saved, ok := latest[migration.Description]; ok && saved.Checksum == migration.Checksum {
			p.logger.Debug(fmt.Sprintf(
				"migration (type: %s, description: %s) checksum not changed, skipping",
				migration.MigrationType, migration.Description))
			continue
		}
		plan.migrationsToRun.PushBack(migration)
	}
}

// currentVersion is the highest successfully applied versioned or baseline version.
func currentVersion(saved []models.MigrationModel) *models.Version {
	var current *models.Version
	for i := range saved {
		if saved[i].State != models.StateSuccess || saved[i].Type == models.TypeRepeatable {
			continue
		}
		if current == nil || saved[i].Version.MoreThan(*current) {
			version := saved[i].Version
			current = &version
		}
	}
	return current
}
