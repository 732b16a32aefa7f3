package mt_migrator

import (
	"sort"
	"sync"
)

// TypeDescriptor describes a declared type: its name, its shape and its
// zero-argument constructor.
type TypeDescriptor struct {
	Name             string
	Abstract         bool
	NoArgConstructor bool
	New              func() any
}

// Concrete describes a constructible type built by ctor.
func Concrete[T any](name string, ctor func() T) TypeDescriptor {
	return TypeDescriptor{
		Name:             name,
		NoArgConstructor: ctor != nil,
		New: func() any {
			return ctor()
		},
	}
}

// Abstract describes a type that can never be instantiated.
func Abstract(name string) TypeDescriptor {
	return TypeDescriptor{Name: name, Abstract: true}
}

// TypeIndex is the set of types known to the application, keyed by name.
type TypeIndex struct {
	mutex sync.RWMutex
	types map[string]TypeDescriptor
}

func NewTypeIndex(types ...TypeDescriptor) *TypeIndex {
	index := &TypeIndex{types: make(map[string]TypeDescriptor, len(types))}
	for _, t := range types {
		index.types[t.Name] = t
	}
	return index
}

func (i *TypeIndex) Register(types ...TypeDescriptor) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	for _, t := range types {
		i.types[t.Name] = t
	}
}

func (i *TypeIndex) Lookup(name string) (TypeDescriptor, bool) {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	t, ok := i.types[name]
	return t, ok
}

// CallbackSet holds instantiated callbacks per unit plus the type names that
// must stay constructible at runtime.
type CallbackSet struct {
	byUnit   map[string][]Callback
	retained []string
}

func (s CallbackSet) For(unit string) []Callback {
	callbacks := s.byUnit[canonicalUnit(unit)]
	result := make([]Callback, len(callbacks))
	copy(result, callbacks)
	return result
}

func (s CallbackSet) Retained() []string {
	result := make([]string, len(s.retained))
	copy(result, s.retained)
	return result
}

// ResolveCallbacks instantiates the callbacks declared for every unit, in declaration order.
// A missing, abstract or non-constructible type is a ConfigurationError.
func ResolveCallbacks(index *TypeIndex, units []string, declared map[string][]string) (CallbackSet, error) {
	set := CallbackSet{byUnit: make(map[string][]Callback, len(units))}
	retained := make(map[string]struct{})

	for _, unit := range units {
		unit = canonicalUnit(unit)
		names := declared[unit]
		instances := make([]Callback, 0, len(names))

		for _, name := range names {
			t, ok := index.Lookup(name)
			if !ok {
				return CallbackSet{}, ConfigurationError.New(
					"migration callback not found for unit %s, please verify the fully qualified name of the type: %s",
					unit, name)
			}
			if t.Abstract || !t.NoArgConstructor || t.New == nil {
				return CallbackSet{}, ConfigurationError.New(
					"invalid migration callback %s for unit %s: it must not be abstract and must have a no-argument constructor",
					name, unit)
			}

			callback, ok := t.New().(Callback)
			if !ok {
				return CallbackSet{}, ConfigurationError.New(
					"invalid migration callback %s for unit %s: type does not implement Callback", name, unit)
			}

			instances = append(instances, callback)
			retained[name] = struct{}{}
		}

		set.byUnit[unit] = instances
	}

	set.retained = sortedKeys(retained)
	return set, nil
}

// MigrationClassDescriptor is a concrete code migration type offered to the engine.
type MigrationClassDescriptor struct {
	Name string
	Type TypeDescriptor
}

// Instantiate builds the migration. Constructor problems surface here, at engine time.
func (d MigrationClassDescriptor) Instantiate() (CodeMigration, error) {
	if d.Type.New == nil {
		return nil, ConfigurationError.New("code migration %s has no constructor", d.Name)
	}
	migration, ok := d.Type.New().(CodeMigration)
	if !ok {
		return nil, ConfigurationError.New("type %s does not implement CodeMigration", d.Name)
	}
	return migration, nil
}

// ResolveMigrationClasses drops abstract candidates and keeps the rest as they are, sorted by name.
func ResolveMigrationClasses(candidates []TypeDescriptor) []MigrationClassDescriptor {
	seen := make(map[string]struct{}, len(candidates))
	result := make([]MigrationClassDescriptor, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Abstract {
			continue
		}
		if _, ok := seen[candidate.Name]; ok {
			continue
		}
		seen[candidate.Name] = struct{}{}
		result = append(result, MigrationClassDescriptor{Name: candidate.Name, Type: candidate})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
