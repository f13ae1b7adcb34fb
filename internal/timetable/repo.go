package timetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"timetabler/pkg/models"
)

const untitled = "Untitled"

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Save inserts rec and reports whether a new row was written. Saving an
// id that already exists is a no-op.
func (r *Repo) Save(ctx context.Context, rec Record) (bool, error) {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return false, fmt.Errorf("marshal timetable: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO timetables (id, title, school_level, grade, kind, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.Data.Title, rec.SchoolLevel, rec.Grade, string(rec.Kind), string(data), created)
	if err != nil {
		return false, fmt.Errorf("insert timetable: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*models.Timetable, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, data FROM timetables WHERE id = ?`, id)

	var (
		tt   models.Timetable
		data string
	)
	if err := row.Scan(&tt.ID, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan get: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &tt.Data); err != nil {
		return nil, fmt.Errorf("decode timetable %s: %w", id, err)
	}
	if tt.Data.Schedule == nil {
		tt.Data.Schedule = models.NewWeek()
	}
	tt.Data.Schedule.Fill()
	return &tt, nil
}

// List returns every stored timetable in creation order.
func (r *Repo) List(ctx context.Context) ([]models.TimetableSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, title FROM timetables ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.TimetableSummary, 0)
	for rows.Next() {
		var s models.TimetableSummary
		if err := rows.Scan(&s.ID, &s.Title); err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		if s.Title == "" {
			s.Title = untitled
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// NextSeq returns one past the highest numeric id suffix stored, so a
// restarted process does not hand out ids that already exist.
func (r *Repo) NextSeq(ctx context.Context) (int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM timetables`)
	if err != nil {
		return 0, fmt.Errorf("seq query: %w", err)
	}
	defer rows.Close()

	var next int64
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("seq scan: %w", err)
		}
		i := strings.LastIndexByte(id, '_')
		if i < 0 {
			continue
		}
		n, err := strconv.ParseInt(id[i+1:], 10, 64)
		if err != nil || n < 0 {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows err: %w", err)
	}
	return next, nil
}

// Ping reports whether the database answers.
func (r *Repo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}
