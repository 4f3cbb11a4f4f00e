package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	chstore "experiment-lab/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database if needed and applies
// the embedded report schemas in lexical order. The returned connection is
// bound to the target database and ready for the report stores.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	// CREATE DATABASE has to run outside the target database, which may
	// not exist yet.
	adminConn, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		adminConn.Close()
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}
	if err := adminConn.Close(); err != nil {
		return nil, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	if err := applyClickhouseFiles(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func applyClickhouseFiles(ctx context.Context, conn *chstore.Conn) error {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		stmts, err := statements(string(data))
		if err != nil {
			return fmt.Errorf("split migration %s: %w", file, err)
		}
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
	}

	return nil
}

// statements splits one migration file into driver-executable statements.
// The native driver runs a single statement per Exec, and the embedded
// files hold several CREATE statements each. Splitting is on semicolons
// outside single-quoted literals ('' escapes included); a semicolon inside
// a literal is refused so a malformed file fails loudly instead of being
// mis-split. Only whole-line -- comments are recognized.
func statements(src string) ([]string, error) {
	var stmts []string
	var cur strings.Builder

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}

		quoted := false
		for i := 0; i < len(line); i++ {
			ch := line[i]
			switch {
			case ch == '\'' && quoted && i+1 < len(line) && line[i+1] == '\'':
				cur.WriteString("''")
				i++
			case ch == '\'':
				quoted = !quoted
				cur.WriteByte(ch)
			case ch == ';':
				if quoted {
					return nil, fmt.Errorf("semicolon inside string literal")
				}
				flush()
			default:
				cur.WriteByte(ch)
			}
		}
		cur.WriteByte('\n')
	}
	flush()

	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
