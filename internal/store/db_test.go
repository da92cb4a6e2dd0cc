package store

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordingDB struct {
	execSQL []string
}

func (d *recordingDB) Exec(_ context.Context, sql string, _ ...interface{}) (pgconn.CommandTag, error) {
	d.execSQL = append(d.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (d *recordingDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (d *recordingDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

func TestMigrate_AppliesEmbeddedSchema(t *testing.T) {
	db := &recordingDB{}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(db.execSQL) != 1 || db.execSQL[0] != Schema {
		t.Fatal("expected the embedded schema to be executed once")
	}
	for _, table := range []string{"tenants", "jobs", "code_provider_configs", "code_executions"} {
		if !strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("schema is missing table %s", table)
		}
	}
}
