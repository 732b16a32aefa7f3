package mt_migrator

// Snapshot is the immutable result of discovery and type resolution, built once
// before any container exists.
type Snapshot struct {
	units            []string
	locations        []string
	locationsByUnit  map[string][]string
	facts            MigrationStateFacts
	callbacks        CallbackSet
	migrationClasses []MigrationClassDescriptor
	resources        ResourceReader
}

// BuildSnapshot discovers the locations of every configured unit and resolves their
// callbacks and the code migration candidates.
func BuildSnapshot(config Config, catalog *Catalog, index *TypeIndex, candidates []TypeDescriptor) (*Snapshot, error) {
	if catalog == nil {
		catalog = NewCatalog(nil)
	}
	if index == nil {
		index = NewTypeIndex()
	}

	units := config.UnitNames()
	snapshot := &Snapshot{
		units:           units,
		locationsByUnit: make(map[string][]string, len(units)),
		resources:       catalog,
	}

	declared := make(map[string][]string, len(units))
	seen := make(map[string]struct{})
	for _, unit := range units {
		_, build := config.Resolve(unit)

		locations, err := catalog.Discover(build.Locations)
		if err != nil {
			return nil, ConfigurationError.Wrap(err, "invalid migration locations for unit %s", unit)
		}
		snapshot.locationsByUnit[unit] = locations
		for _, location := range locations {
			if _, ok := seen[location]; ok {
				continue
			}
			seen[location] = struct{}{}
			snapshot.locations = append(snapshot.locations, location)
		}

		declared[unit] = build.Callbacks
	}

	snapshot.facts = BuildMigrationStateFacts(units, snapshot.locationsByUnit)

	callbacks, err := ResolveCallbacks(index, units, declared)
	if err != nil {
		return nil, err
	}
	snapshot.callbacks = callbacks
	snapshot.migrationClasses = ResolveMigrationClasses(candidates)

	return snapshot, nil
}

func (s *Snapshot) Units() []string {
	return append([]string(nil), s.units...)
}

// Locations is the union of every unit's discovered locations.
func (s *Snapshot) Locations() []string {
	return append([]string(nil), s.locations...)
}

func (s *Snapshot) LocationsFor(unit string) []string {
	return append([]string(nil), s.locationsByUnit[canonicalUnit(unit)]...)
}

func (s *Snapshot) Facts() MigrationStateFacts {
	return s.facts
}

func (s *Snapshot) Callbacks(unit string) []Callback {
	return s.callbacks.For(unit)
}

func (s *Snapshot) RetainedTypes() []string {
	return s.callbacks.Retained()
}

func (s *Snapshot) MigrationClasses() []MigrationClassDescriptor {
	return append([]MigrationClassDescriptor(nil), s.migrationClasses...)
}

func (s *Snapshot) Resources() ResourceReader {
	return s.resources
}
