package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// CustomTime scans both native timestamps and unix seconds.
type CustomTime struct {
	time.Time
}

func Now() CustomTime {
	return CustomTime{Time: time.Now().UTC()}
}

func (c CustomTime) Value() (driver.Value, error) {
	return c.Time, nil
}

func (c *CustomTime) Scan(value interface{}) error {
	switch typed := value.(type) {
	case time.Time:
		*c = CustomTime{Time: typed}
	case int64:
		*c = CustomTime{Time: time.Unix(typed, 0).UTC()}
	case nil:
		*c = CustomTime{}
	default:
		return fmt.Errorf("invalid time type %T", value)
	}
	return nil
}
