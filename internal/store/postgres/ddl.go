package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var ddlFile string

func ddlStatements() []string {
	parts := strings.Split(ddlFile, ";")
	var out []string
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// EnsureSchema applies the embedded DDL. Every statement is IF NOT
// EXISTS, so this is safe to run on every startup. The lease queries in
// this package rely on ingest_jobs.leased_until defaulting to 'epoch'.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range ddlStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
