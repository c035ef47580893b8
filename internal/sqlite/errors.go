package sqlite

import (
	"errors"
	"strings"

	driver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func isForeignKeyViolation(err error) bool {
	return isConstraintViolation(err, "FOREIGN KEY")
}

func isUniqueViolation(err error) bool {
	return isConstraintViolation(err, "UNIQUE")
}

// isConstraintViolation reports whether err is a constraint failure of the given kind.
// The driver only exposes the kind in the message.
func isConstraintViolation(err error, kind string) bool {
	if err == nil {
		return false
	}
	var se *driver.Error
	if errors.As(err, &se) && se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(err.Error(), kind+" constraint failed")
}
