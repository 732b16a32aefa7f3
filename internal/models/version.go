package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Version struct {
	Major      int
	Minor      int
	Patch      int
	PreRelease int
}

func (v Version) Value() (driver.Value, error) {
	return v.String(), nil
}

func (v *Version) Scan(value interface{}) error {
	var err error

	switch typed := value.(type) {
	case string:
		*v, err = ParseVersion(typed)
	case []byte:
		*v, err = ParseVersion(string(typed))
	case nil:
		*v = Version{}
	default:
		err = fmt.Errorf("invalid version type %T", value)
	}
	return err
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Patch, v.PreRelease)
}

func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) Equals(version Version) bool {
	return v == version
}

func (v Version) MoreThan(version Version) bool {
	if v.Major != version.Major {
		return v.Major > version.Major
	}
	if v.Minor != version.Minor {
		return v.Minor > version.Minor
	}
	if v.Patch != version.Patch {
		return v.Patch > version.Patch
	}
	return v.PreRelease > version.PreRelease
}

func (v Version) MoreOrEqual(version Version) bool {
	return v.MoreThan(version) || v.Equals(version)
}

func (v Version) LessThan(version Version) bool {
	return !v.MoreOrEqual(version)
}

func (v Version) LessOrEqual(version Version) bool {
	return !v.MoreThan(version)
}

// ParseVersion accepts one to four numeric parts separated by dots or underscores;
// missing parts are zero.
func ParseVersion(versionString string) (Version, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(versionString), "_", ".")
	if normalized == "" {
		return Version{}, errors.New("empty version")
	}

	parts := strings.Split(normalized, ".")
	if len(parts) > 4 {
		return Version{}, fmt.Errorf("invalid version format: %s", versionString)
	}

	var numbers [4]int
	for i, part := range parts {
		number, err := strconv.Atoi(part)
		if err != nil || number < 0 {
			return Version{}, fmt.Errorf("invalid version format: %s", versionString)
		}
		numbers[i] = number
	}

	return Version{
		Major:      numbers[0],
		Minor:      numbers[1],
		Patch:      numbers[2],
		PreRelease: numbers[3],
	}, nil
}

func MustParseVersion(versionString string) Version {
	version, err := ParseVersion(versionString)
	if err != nil {
		panic(err)
	}
	return version
}
