// Package migrations applies the numbered SQL scripts embedded in FS.
//
// The applied version is kept in SQLite's user_version header field, so a
// database file carries its schema version without an extra table.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// ErrNewerSchema is returned when the database was migrated by a newer shell.
var ErrNewerSchema = errors.New("database schema is newer than this build")

type script struct {
	version int
	name    string
	sql     string
}

// Run 执行所有待执行的迁移
func Run(db *sql.DB) error {
	scripts, err := load(FS)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	current, err := Version(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if latest := latestOf(scripts); current > latest {
		return fmt.Errorf("%w: have %d, know %d", ErrNewerSchema, current, latest)
	}

	for _, s := range scripts {
		if s.version <= current {
			continue
		}
		if err := apply(db, s); err != nil {
			return fmt.Errorf("migration %s: %w", s.name, err)
		}
	}
	return nil
}

// Version 返回数据库当前的 schema 版本，新库为 0
func Version(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// Latest 返回内嵌脚本中的最高版本
func Latest() (int, error) {
	scripts, err := load(FS)
	if err != nil {
		return 0, err
	}
	return latestOf(scripts), nil
}

func latestOf(scripts []script) int {
	if len(scripts) == 0 {
		return 0
	}
	return scripts[len(scripts)-1].version
}

// load reads every *.sql under scripts/ and checks the versions run 1..n
// without gaps or duplicates.
func load(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "scripts")
	if err != nil {
		return nil, err
	}

	var scripts []script
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		version, err := parseVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		// embed.FS paths always use forward slashes.
		content, err := fs.ReadFile(fsys, path.Join("scripts", entry.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script{version: version, name: entry.Name(), sql: string(content)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].version < scripts[j].version })
	for i, s := range scripts {
		if s.version != i+1 {
			return nil, fmt.Errorf("migration %s: expected version %d", s.name, i+1)
		}
	}
	return scripts, nil
}

func parseVersion(filename string) (int, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename: %s", filename)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid migration version in %s", filename)
	}
	return v, nil
}

// apply runs one script and bumps user_version in the same transaction.
func apply(db *sql.DB, s script) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(s.sql); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", s.version)); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
