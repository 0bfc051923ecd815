package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run is one spawn of the bot process.
type Run struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	AuthService string     `json:"auth_service"`
	Location    string     `json:"location"`
	Command     string     `json:"command"`
	PID         int        `json:"pid"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	Error       string     `json:"error,omitempty"`
	LogLines    int        `json:"log_lines"`
	Alerts      int        `json:"alerts"`
}

// Running reports whether the run has no recorded end.
func (r *Run) Running() bool {
	return r.EndedAt == nil
}

// RunExit is what is known about a run when its process ends.
type RunExit struct {
	EndedAt  time.Time
	ExitCode int
	Error    string
	LogLines int
	Alerts   int
}

const runColumns = `id, username, auth_service, location, command, pid, started_at, ended_at, exit_code, error, log_lines, alerts`

// CreateRun 记录一次新的 bot 启动
func (db *DB) CreateRun(r *Run) error {
	if r.ID == "" {
		return errors.New("run id is required")
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO runs (id, username, auth_service, location, command, pid, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Username, r.AuthService, r.Location, r.Command, r.PID, r.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun 记录 bot 退出
func (db *DB) FinishRun(id string, exit RunExit) error {
	res, err := db.Exec(
		`UPDATE runs SET ended_at = ?, exit_code = ?, error = ?, log_lines = ?, alerts = ? WHERE id = ?`,
		exit.EndedAt.UTC(), exit.ExitCode, exit.Error, exit.LogLines, exit.Alerts, id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun 按 ID 查询
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns 按启动时间倒序返回最近的运行记录
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CloseDanglingRuns marks runs without an end as ended at the given time.
// A crash of the shell leaves such rows behind.
func (db *DB) CloseDanglingRuns(at time.Time) (int64, error) {
	res, err := db.Exec(
		`UPDATE runs SET ended_at = ?, error = 'shell exited before bot' WHERE ended_at IS NULL`,
		at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("close dangling runs: %w", err)
	}
	return res.RowsAffected()
}

// PruneRuns 删除在 before 之前结束的运行记录
func (db *DB) PruneRuns(before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM runs WHERE ended_at IS NOT NULL AND ended_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r        Run
		endedAt  sql.NullTime
		exitCode sql.NullInt64
	)
	err := s.Scan(
		&r.ID, &r.Username, &r.AuthService, &r.Location, &r.Command, &r.PID,
		&r.StartedAt, &endedAt, &exitCode, &r.Error, &r.LogLines, &r.Alerts,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		r.ExitCode = &c
	}
	return &r, nil
}
