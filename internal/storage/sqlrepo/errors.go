package sqlrepo

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"reviewpulse/internal/domain"
)

const (
	ConstraintReviewBusiness = "reviews.business_id"
	ConstraintUnique         = "unique"
)

const (
	mysqlErrDupEntry    = 1062
	mysqlErrNoReference = 1452
)

// mapErr wraps a driver error in a *domain.StorageError, naming the
// constraint when the driver tells us which kind was violated.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.StorageError
	if errors.As(err, &se) {
		return err
	}
	out := &domain.StorageError{Op: op, Err: err}

	var me *mysql.MySQLError
	var le *sqlite.Error
	switch {
	case errors.As(err, &me):
		switch me.Number {
		case mysqlErrNoReference:
			out.Constraint = ConstraintReviewBusiness
		case mysqlErrDupEntry:
			out.Constraint = ConstraintUnique
		}
	case errors.As(err, &le):
		switch le.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			out.Constraint = ConstraintReviewBusiness
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			out.Constraint = ConstraintUnique
		}
	}
	return out
}

// dbTime scans DATETIME columns from either driver: MySQL with parseTime
// yields time.Time, SQLite may hand back text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var textTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		*t = dbTime{}
		return nil
	case time.Time:
		*t = dbTime{Time: x.UTC(), Valid: true}
		return nil
	case int64:
		*t = dbTime{Time: time.UnixMilli(x).UTC(), Valid: true}
		return nil
	case []byte:
		return t.parse(string(x))
	case string:
		return t.parse(x)
	}
	return fmt.Errorf("dbTime: cannot scan %T", v)
}

func (t *dbTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, l := range textTimeLayouts {
		if p, err := time.Parse(l, s); err == nil {
			*t = dbTime{Time: p.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("dbTime: unrecognized time %q", s)
}

func (t dbTime) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time, nil
}
