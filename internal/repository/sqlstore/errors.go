package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jwalitptl/availability-api/internal/repository"
)

const errDBClosed = "sql: database is closed"

// mapError marks connection-level failures with repository.ErrStorageUnavailable
// and passes everything else through.
func mapError(err error) error {
	if err == nil || !isUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", repository.ErrStorageUnavailable, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	// database/sql does not export the error returned after Close.
	if strings.Contains(err.Error(), errDBClosed) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exception, 57P01-57P03: server shutting down.
		switch pqErr.Code.Class() {
		case "08":
			return true
		case "57":
			return pqErr.Code != "57014"
		}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// Code may carry an extended result code; the low byte is the primary one.
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	return false
}

func wrap(op string, err error) error {
	return fmt.Errorf("failed to %s: %w", op, mapError(err))
}
