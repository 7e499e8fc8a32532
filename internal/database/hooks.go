package database

import (
	"time"

	"example.com/backstage/services/charity/internal/metrics"

	"gorm.io/gorm"
)

const startTimeKey = "charity:start_time"

// RegisterHooks times every create/query/update/delete/raw statement and
// reports it to the metrics collector.
func RegisterHooks(db *gorm.DB, m *metrics.Metrics) error {
	cb := db.Callback()

	before := []struct {
		name string
		reg  func() error
	}{
		{"create", func() error { return cb.Create().Before("gorm:create").Register("duration:create", markStart) }},
		{"query", func() error { return cb.Query().Before("gorm:query").Register("duration:query", markStart) }},
		{"update", func() error { return cb.Update().Before("gorm:update").Register("duration:update", markStart) }},
		{"delete", func() error { return cb.Delete().Before("gorm:delete").Register("duration:delete", markStart) }},
		{"raw", func() error { return cb.Raw().Before("gorm:raw").Register("duration:raw", markStart) }},
	}
	for _, b := range before {
		if err := b.reg(); err != nil {
			return err
		}
	}

	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			m.IncrementCounter(metrics.DBQueries)
			m.RecordTimer("db_"+op, elapsed(tx))
			if tx.Error != nil && !IsRecordNotFoundError(tx.Error) {
				m.RecordError("db_" + op)
			} else {
				m.RecordSuccess("db_" + op)
			}
		}
	}

	if err := cb.Create().After("gorm:create").Register("metrics:create", after("insert")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("metrics:query", after("select")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("metrics:update", after("update")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("metrics:delete", after("delete")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("metrics:raw", after("raw"))
}

func markStart(tx *gorm.DB) {
	tx.InstanceSet(startTimeKey, time.Now())
}

func elapsed(tx *gorm.DB) time.Duration {
	if start, ok := tx.InstanceGet(startTimeKey); ok {
		if t, ok := start.(time.Time); ok {
			return time.Since(t)
		}
	}
	return 0
}
