// Package repository holds the MySQL-backed stores. The sentinel errors
// below let higher layers tell "no such row" and "unique constraint hit"
// apart from infrastructure failures.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup or update matches no row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert violates a unique key.
var ErrAlreadyExists = errors.New("already exists")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
