package migrations

import (
	"context"
	"fmt"
	"strings"

	chstore "pricewatch/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the gold database if needed, brings its
// schema up to date and returns a connection bound to it for reuse.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := chstore.DatabaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	if err := ensureDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	files, err := loadSchemaFiles("clickhouse")
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, f := range files {
		stmts, err := clickhouseStatements(f.sql)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("split migration %s: %w", f.name, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", f.name, err)
			}
		}
	}

	return conn, nil
}

// ensureDatabase connects without a database selected and creates the
// target one. A throwaway connection, closed before the real one opens.
func ensureDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

// clickhouseStatements splits one migration file into single statements,
// because the driver rejects multi-statement Exec. The splitter drops
// "--" comment lines and cuts on semicolons; it refuses a semicolon
// inside a quoted literal rather than mis-splitting on it, so migration
// files must avoid them (none of ours need one).
func clickhouseStatements(sql string) ([]string, error) {
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}
	body := strings.Join(kept, "\n")

	var stmts []string
	var b strings.Builder
	inLiteral := false
	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case ch == '\'':
			// '' escapes a quote inside a literal.
			if inLiteral && i+1 < len(body) && body[i+1] == '\'' {
				b.WriteByte(ch)
				i++
			} else {
				inLiteral = !inLiteral
			}
			b.WriteByte('\'')
			continue
		case ch == ';' && inLiteral:
			return nil, fmt.Errorf("semicolon inside string literal at offset %d", i)
		case ch == ';':
			if stmt := strings.TrimSpace(b.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			b.Reset()
			continue
		}
		b.WriteByte(ch)
	}
	if stmt := strings.TrimSpace(b.String()); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}
