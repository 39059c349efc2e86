package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-storefront-auth"
)

// Open connects a bun handle to a sqlite DSN, ":memory:" included
func Open(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	// sqlite serializes writers, a single connection also keeps
	// in memory databases alive across calls
	sqldb.SetMaxOpenConns(1)

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// CreateSchema creates the identity tables when missing
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*auth.User)(nil),
		(*auth.ExternalLogin)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("store: create table: %w", err)
		}
	}

	indexes := []struct {
		name    string
		model   any
		columns []string
		unique  bool
	}{
		{"users_normalized_email_idx", (*auth.User)(nil), []string{"normalized_email"}, false},
		{"user_logins_provider_key_idx", (*auth.ExternalLogin)(nil), []string{"provider", "provider_key"}, true},
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).IfNotExists().Column(idx.columns...)
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("store: create index %s: %w", idx.name, err)
		}
	}
	return nil
}
