package repository

import (
	"errors"
	"strings"

	"github.com/Maksumys/mt-migrator/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")

type Order string

const (
	OrderASC  Order = "ASC"
	OrderDESC Order = "DESC"
)

// HasHistoryTable looks table up in information_schema. A schema-qualified name
// is searched in that schema, a bare one in the current schema.
func HasHistoryTable(db *gorm.DB, table string) (bool, error) {
	schema, name, qualified := strings.Cut(table, ".")
	query := db.Table("information_schema.tables").Where("table_type = ?", "BASE TABLE")
	if qualified {
		query = query.Where("table_schema = ? AND table_name = ?", schema, name)
	} else {
		query = query.Where("table_schema = CURRENT_SCHEMA() AND table_name = ?", table)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func CreateHistoryTable(db *gorm.DB, table string) error {
	return db.Table(table).AutoMigrate(&models.MigrationModel{})
}

func DropTable(db *gorm.DB, table string) error {
	return db.Migrator().DropTable(table)
}

func CreateSchema(db *gorm.DB, schema string) error {
	return db.Exec("CREATE SCHEMA IF NOT EXISTS ?", clause.Table{Name: schema}).Error
}

func DropSchema(db *gorm.DB, schema string) error {
	return db.Exec("DROP SCHEMA IF EXISTS ? CASCADE", clause.Table{Name: schema}).Error
}

func GetMigrationsSorted(db *gorm.DB, table string, order Order) ([]models.MigrationModel, error) {
	var rows []models.MigrationModel
	err := db.Table(table).Order(clause.OrderByColumn{
		Column: clause.Column{Name: "rank"},
		Desc:   order == OrderDESC,
	}).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type SaveMigrationRequest struct {
	Rank          int
	Type          models.MigrationType
	Version       models.Version
	Description   string
	Script        string
	Checksum      string
	State         models.MigrationState
	ExecutionTime int64
}

func SaveMigration(db *gorm.DB, table string, request SaveMigrationRequest) (models.MigrationModel, error) {
	row := models.MigrationModel{
		Rank:          request.Rank,
		Type:          request.Type,
		Version:       request.Version,
		Description:   request.Description,
		Script:        request.Script,
		Checksum:      request.Checksum,
		State:         request.State,
		InstalledOn:   models.Now(),
		ExecutionTime: request.ExecutionTime,
	}
	err := db.Table(table).Create(&row).Error
	return row, err
}

// DeleteFailed removes every failed row and reports how many were removed.
func DeleteFailed(db *gorm.DB, table string) (int64, error) {
	res := db.Table(table).Where("state = ?", models.StateFailure).Delete(&models.MigrationModel{})
	return res.RowsAffected, res.Error
}

func UpdateChecksum(db *gorm.DB, table string, migration *models.MigrationModel, checksum, description string) error {
	res := db.Table(table).Where("id = ?", migration.Id).Updates(map[string]interface{}{
		"checksum":    checksum,
		"description": description,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	migration.Checksum = checksum
	migration.Description = description
	return nil
}

func MaxRank(rows []models.MigrationModel) int {
	maxRank := 0
	for i := range rows {
		if rows[i].Rank > maxRank {
			maxRank = rows[i].Rank
		}
	}
	return maxRank
}
