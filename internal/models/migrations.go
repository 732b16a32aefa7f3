package models

type MigrationState string

const (
	StateSuccess MigrationState = "success"
	StateFailure MigrationState = "failure"
)

type MigrationType string

const (
	TypeBaseline   MigrationType = "baseline"
	TypeVersioned  MigrationType = "versioned"
	TypeRepeatable MigrationType = "repeatable"
)

// MigrationModel is a row of a target's migration history table. The table
// name is chosen per target.
type MigrationModel struct {
	Id            uint32 `gorm:"primaryKey;autoIncrement"`
	Rank          int
	Type          MigrationType
	Version       Version `gorm:"type:text"`
	Description   string
	Script        string
	Checksum      string
	State         MigrationState
	InstalledOn   CustomTime `gorm:"type:timestamp"`
	ExecutionTime int64
}
