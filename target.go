package mt_migrator

import (
	"fmt"
	"strings"
)

const (
	DefaultUnit   = "default"
	DefaultTenant = "default"
)

// Target identifies a (persistence unit, tenant) pair. An empty Tenant means the
// request carries no tenant qualifier.
type Target struct {
	Unit   string
	Tenant string
}

// UnitTarget returns an unqualified target for the given unit.
func UnitTarget(unit string) Target {
	return Target{Unit: unit}
}

// TenantTarget returns a target qualified with a tenant.
func TenantTarget(unit, tenant string) Target {
	return Target{Unit: unit, Tenant: tenant}
}

func (t Target) Qualified() bool {
	return t.Tenant != ""
}

func (t Target) String() string {
	if t.Tenant == "" {
		return t.Unit
	}
	return fmt.Sprintf("%s[%s]", t.Unit, t.Tenant)
}

// IsDefaultUnit reports whether name denotes the primary, unqualified unit.
func IsDefaultUnit(name string) bool {
	return name == DefaultUnit || name == "" || name == "<"+DefaultUnit+">"
}

func canonicalUnit(name string) string {
	if IsDefaultUnit(name) {
		return DefaultUnit
	}
	return name
}

func containerID(unit, tenant string) string {
	id := unit + "_" + tenant
	return strings.NewReplacer("<", "", ">", "").Replace(id)
}
