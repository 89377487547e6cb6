package txn

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "generic error",
			err:  errors.New("some random error"),
			want: false,
		},
		{
			name: "mysql deadlock",
			err:  &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"},
			want: true,
		},
		{
			name: "mysql lock wait timeout wrapped",
			err:  fmt.Errorf("insert user: %w", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}),
			want: true,
		},
		{
			name: "mysql duplicate entry",
			err:  &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
			want: false,
		},
		{
			name: "postgres serialization failure",
			err:  errors.New("ERROR: could not serialize access (SQLSTATE 40001)"),
			want: true,
		},
		{
			name: "sqlite busy",
			err:  errors.New("database is locked (5) (SQLITE_BUSY)"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
