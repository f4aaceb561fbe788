package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

var (
	// ErrNotFound is returned when a profile, task or step does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalid is returned for input the store refuses to persist.
	ErrInvalid = errors.New("invalid input")

	// ErrAlreadyCompleted is returned when a step is marked done a second time.
	ErrAlreadyCompleted = errors.New("already completed")
)

// Store keeps profiles and decomposed tasks in a local SQLite file.
type Store struct {
	DB *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers anyway; one connection also keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	queries := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			neuro_type TEXT NOT NULL DEFAULT 'General',
			xp INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			dyslexic_font INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			profile_id INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			steps TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_profile ON tasks(profile_id);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise schema: %w", err)
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const profileColumns = `id, name, neuro_type, xp, level, dyslexic_font, created_at`

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var font int
	var created int64
	if err := row.Scan(&p.ID, &p.Name, &p.NeuroType, &p.XP, &p.Level, &font, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.DyslexicFont = font != 0
	p.CreatedAt = time.Unix(created, 0)
	return &p, nil
}

// CreateProfile adds a new profile at level 1 with no XP.
func (s *Store) CreateProfile(name, neuroType string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("profile name is required: %w", ErrInvalid)
	}
	if strings.TrimSpace(neuroType) == "" {
		neuroType = "General"
	}

	res, err := s.DB.Exec(`INSERT INTO profiles (name, neuro_type, created_at) VALUES (?, ?, ?)`,
		name, neuroType, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetProfile(id)
}

func (s *Store) GetProfile(id int64) (*Profile, error) {
	row := s.DB.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	return scanProfile(row)
}

func (s *Store) ListProfiles() ([]Profile, error) {
	rows, err := s.DB.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// DeleteProfile removes the profile and every task it owns.
func (s *Store) DeleteProfile(id int64) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tasks WHERE profile_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) ToggleDyslexicFont(id int64) (*Profile, error) {
	res, err := s.DB.Exec(`UPDATE profiles SET dyslexic_font = 1 - dyslexic_font WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetProfile(id)
}

// AwardXP adds amount to the profile's XP and reports whether it levelled up.
func (s *Store) AwardXP(id int64, amount int) (*Profile, bool, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	p, err := scanProfile(tx.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if err != nil {
		return nil, false, err
	}
	xp, level, up := ApplyXP(p.XP, p.Level, amount)
	if _, err := tx.Exec(`UPDATE profiles SET xp = ?, level = ? WHERE id = ?`, xp, level, id); err != nil {
		return nil, false, fmt.Errorf("failed to update xp: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	p.XP, p.Level = xp, level
	return p, up, nil
}

const taskColumns = `id, profile_id, title, steps, completed, created_at`

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var steps string
	var completed int
	var created int64
	if err := row.Scan(&t.ID, &t.ProfileID, &t.Title, &steps, &completed, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &t.Steps); err != nil {
		return nil, fmt.Errorf("task %d has corrupt steps: %w", t.ID, err)
	}
	t.Completed = completed != 0
	t.CreatedAt = time.Unix(created, 0)
	return &t, nil
}

// AddTask saves a decomposed task with its ordered steps, all marked incomplete.
func (s *Store) AddTask(profileID int64, title string, steps []MicroStep) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("task title is required: %w", ErrInvalid)
	}
	if _, err := s.GetProfile(profileID); err != nil {
		return nil, err
	}

	saved := make([]MicroStep, len(steps))
	for i, st := range steps {
		st.Completed = false
		saved[i] = st
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return nil, err
	}

	res, err := s.DB.Exec(`INSERT INTO tasks (profile_id, title, steps, created_at) VALUES (?, ?, ?, ?)`,
		profileID, title, string(data), time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to add task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTask(id)
}

func (s *Store) GetTask(id int64) (*Task, error) {
	return scanTask(s.DB.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
}

// ListTasks returns the profile's tasks, newest first.
func (s *Store) ListTasks(profileID int64) ([]Task, error) {
	rows, err := s.DB.Query(`SELECT `+taskColumns+` FROM tasks WHERE profile_id = ? ORDER BY id DESC`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) DeleteTask(id int64) error {
	res, err := s.DB.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteStep marks one step done. The returned bool is true when this call finished the task.
// Steps are completed at most once; repeats return ErrAlreadyCompleted.
func (s *Store) CompleteStep(taskID int64, stepID int) (*Task, bool, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	t, err := scanTask(tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID))
	if err != nil {
		return nil, false, err
	}

	found := false
	allDone := true
	for i := range t.Steps {
		if t.Steps[i].ID == stepID {
			if t.Steps[i].Completed {
				return t, false, fmt.Errorf("step %d of task %d: %w", stepID, taskID, ErrAlreadyCompleted)
			}
			t.Steps[i].Completed = true
			found = true
		}
		allDone = allDone && t.Steps[i].Completed
	}
	if !found {
		return nil, false, fmt.Errorf("step %d of task %d: %w", stepID, taskID, ErrNotFound)
	}

	finished := allDone && !t.Completed
	t.Completed = allDone

	data, err := json.Marshal(t.Steps)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.Exec(`UPDATE tasks SET steps = ?, completed = ? WHERE id = ?`, string(data), boolInt(t.Completed), taskID); err != nil {
		return nil, false, fmt.Errorf("failed to update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return t, finished, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
