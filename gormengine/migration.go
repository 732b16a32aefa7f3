package gormengine

import (
	"crypto/sha256"
	"fmt"
	"path"
	"sort"
	"strings"

	mt "github.com/Maksumys/mt-migrator"
	"github.com/Maksumys/mt-migrator/internal/models"
)

// Migration is a resolved, executable migration: a SQL script or a code migration.
type Migration struct {
	MigrationType models.MigrationType
	Version       models.Version
	Description   string
	Script        string

	SQL  string
	Code mt.CodeMigration

	Checksum string
}

func (m Migration) identifier() string {
	if m.MigrationType == models.TypeRepeatable {
		return string(m.MigrationType) + ":" + m.Description
	}
	return string(m.MigrationType) + ":" + m.Version.String()
}

// resolveMigrations reads the scripts and instantiates the code migrations of a
// target. Duplicate versions are a configuration error.
func resolveMigrations(opts mt.RunnerOptions) ([]Migration, error) {
	var resolved []Migration

	if opts.Resources != nil {
		values := placeholders(opts)
		locations, err := mt.ExpandLocations(opts.Resources, opts.Locations)
		if err != nil {
			return nil, err
		}
		for _, location := range locations {
			migration, ok, err := parseScriptName(opts.Build, location)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			content, err := opts.Resources.ReadFile(location)
			if err != nil {
				return nil, err
			}
			migration.SQL = replacePlaceholders(string(content), values)
			migration.Checksum = checksumSQL(migration.SQL)
			resolved = append(resolved, migration)
		}
	}

	for _, class := range opts.MigrationClasses {
		code, err := class.Instantiate()
		if err != nil {
			return nil, err
		}
		version, err := models.ParseVersion(code.Version())
		if err != nil {
			return nil, mt.ConfigurationError.Wrap(err, "invalid version of code migration %s", class.Name)
		}
		resolved = append(resolved, Migration{
			MigrationType: models.TypeVersioned,
			Version:       version,
			Description:   code.Description(),
			Script:        class.Name,
			Code:          code,
		})
	}

	seen := make(map[string]string, len(resolved))
	for _, migration := range resolved {
		id := migration.identifier()
		if other, ok := seen[id]; ok {
			return nil, mt.ConfigurationError.New(
				"found more than one migration with %s: %s and %s", id, other, migration.Script)
		}
		seen[id] = migration.Script
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[j].Version.MoreThan(resolved[i].Version)
	})
	return resolved, nil
}

// parseScriptName recognizes <prefix><version>__<description><suffix> and
// <repeatable prefix>__<description><suffix>. Other files are ignored.
func parseScriptName(build mt.BuildTimeConfig, location string) (Migration, bool, error) {
	name := path.Base(location)

	suffix := ""
	for _, candidate := range build.SQLMigrationSuffixes {
		if strings.HasSuffix(name, candidate) {
			suffix = candidate
			break
		}
	}
	if suffix == "" {
		return Migration{}, false, nil
	}
	name = strings.TrimSuffix(name, suffix)

	if rest, ok := strings.CutPrefix(name, build.RepeatableSQLMigrationPrefix+"__"); ok {
		return Migration{
			MigrationType: models.TypeRepeatable,
			Description:   describe(rest),
			Script:        location,
		}, true, nil
	}

	rest, ok := strings.CutPrefix(name, build.SQLMigrationPrefix)
	if !ok {
		return Migration{}, false, nil
	}
	rawVersion, description, ok := strings.Cut(rest, "__")
	if !ok {
		return Migration{}, false, mt.ConfigurationError.New(
			"invalid migration script name %s: missing '__' separator", location)
	}
	version, err := models.ParseVersion(rawVersion)
	if err != nil {
		return Migration{}, false, mt.ConfigurationError.Wrap(err, "invalid migration script name %s", location)
	}

	return Migration{
		MigrationType: models.TypeVersioned,
		Version:       version,
		Description:   describe(description),
		Script:        location,
	}, true, nil
}

func describe(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "_", " "))
}

// placeholders exposes the tenant as ${tenant}; configured placeholders take precedence.
func placeholders(opts mt.RunnerOptions) map[string]string {
	values := map[string]string{"tenant": opts.Target.Tenant}
	for key, value := range opts.Runtime.Placeholders {
		values[key] = value
	}
	return values
}

func replacePlaceholders(sql string, placeholders map[string]string) string {
	if len(placeholders) == 0 {
		return sql
	}
	pairs := make([]string, 0, len(placeholders)*2)
	for key, value := range placeholders {
		pairs = append(pairs, "${"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(sql)
}

func checksumSQL(sql string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(sql)))
}
