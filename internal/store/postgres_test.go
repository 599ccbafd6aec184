package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"
)

var errNoRowCount = errors.New("row count unavailable")

// execOnlyDriver executes statements but cannot report affected rows, the
// way some drivers behave for certain statement classes. It exists to pin
// down how PostgresStore surfaces that condition.
type execOnlyDriver struct{}

func (execOnlyDriver) Open(string) (driver.Conn, error) { return execOnlyConn{}, nil }

type execOnlyConn struct{}

func (execOnlyConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (execOnlyConn) Close() error              { return nil }
func (execOnlyConn) Begin() (driver.Tx, error) { return nil, errors.New("begin not supported") }

func (execOnlyConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return noCountResult{}, nil
}

type noCountResult struct{}

func (noCountResult) LastInsertId() (int64, error) { return 0, errNoRowCount }
func (noCountResult) RowsAffected() (int64, error) { return 0, errNoRowCount }

func init() { sql.Register("execonly", execOnlyDriver{}) }

func TestDeleteExpiredInvitationsSurfacesRowCountError(t *testing.T) {
	db, err := sql.Open("execonly", "")
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	defer db.Close()

	s := NewPostgresStore(db)
	if _, err := s.DeleteExpiredInvitations(context.Background(), time.Now()); !errors.Is(err, errNoRowCount) {
		t.Fatalf("error = %v, want the driver's row count error", err)
	}
}
