package migrateengine

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	mt "github.com/Maksumys/mt-migrator"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// script is a versioned migration script renamed to the
// <version>_<title>.up.sql layout golang-migrate reads.
type script struct {
	version  uint
	name     string
	location string
	sql      string
}

// buildSource copies the target's versioned scripts into an in-memory tree and
// serves it as a golang-migrate source. Repeatable scripts and code migrations
// cannot be expressed there and are skipped.
func buildSource(opts mt.RunnerOptions, logger logrus.FieldLogger) (source.Driver, []script, error) {
	fs := afero.NewMemMapFs()
	var scripts []script

	if opts.Resources != nil {
		locations, err := mt.ExpandLocations(opts.Resources, opts.Locations)
		if err != nil {
			return nil, nil, err
		}

		seen := make(map[uint]string)
		for _, location := range locations {
			s, ok, err := parseScript(opts.Build, location, logger)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
			if other, ok := seen[s.version]; ok {
				return nil, nil, mt.ConfigurationError.New(
					"found more than one migration with version %d: %s and %s", s.version, other, location)
			}
			seen[s.version] = location

			content, err := opts.Resources.ReadFile(location)
			if err != nil {
				return nil, nil, err
			}
			s.sql = replacePlaceholders(string(content), placeholders(opts))
			if err := afero.WriteFile(fs, s.name, []byte(s.sql), 0o644); err != nil {
				return nil, nil, err
			}
			scripts = append(scripts, s)
		}
	}

	for _, class := range opts.MigrationClasses {
		logger.WithField("migration", class.Name).Warn("code migrations are not supported by this engine, skipping")
	}

	driver, err := iofs.New(afero.NewIOFS(fs), ".")
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].version < scripts[j].version })
	return driver, scripts, nil
}

func parseScript(build mt.BuildTimeConfig, location string, logger logrus.FieldLogger) (script, bool, error) {
	name := path.Base(location)

	suffix := ""
	for _, candidate := range build.SQLMigrationSuffixes {
		if strings.HasSuffix(name, candidate) {
			suffix = candidate
			break
		}
	}
	if suffix == "" {
		return script{}, false, nil
	}
	name = strings.TrimSuffix(name, suffix)

	if strings.HasPrefix(name, build.RepeatableSQLMigrationPrefix+"__") {
		logger.WithField("script", location).Warn("repeatable migrations are not supported by this engine, skipping")
		return script{}, false, nil
	}

	rest, ok := strings.CutPrefix(name, build.SQLMigrationPrefix)
	if !ok {
		return script{}, false, nil
	}
	rawVersion, description, ok := strings.Cut(rest, "__")
	if !ok {
		return script{}, false, mt.ConfigurationError.New(
			"invalid migration script name %s: missing '__' separator", location)
	}
	version, err := strconv.ParseUint(rawVersion, 10, 64)
	if err != nil {
		return script{}, false, mt.ConfigurationError.Wrap(err,
			"invalid migration script name %s: this engine only accepts integer versions", location)
	}

	return script{
		version:  uint(version),
		name:     fmt.Sprintf("%d_%s.up.sql", version, strings.ToLower(description)),
		location: location,
	}, true, nil
}

// placeholders adds the tenant name under ${tenant} unless it is configured explicitly.
func placeholders(opts mt.RunnerOptions) map[string]string {
	result := make(map[string]string, len(opts.Runtime.Placeholders)+1)
	result["tenant"] = opts.Target.Tenant
	for key, value := range opts.Runtime.Placeholders {
		result[key] = value
	}
	return result
}

func replacePlaceholders(sql string, placeholders map[string]string) string {
	pairs := make([]string, 0, len(placeholders)*2)
	for key, value := range placeholders {
		pairs = append(pairs, "${"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(sql)
}
