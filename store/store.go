// Package store persists Monte Carlo trajectories in a SQLite database, one
// row per trajectory.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const tableTraj = "traj"

// Row is one stored trajectory.
type Row struct {
	ID       int
	Phi      []complex128
	Action   complex128
	Accepted bool
}

// Store is a trajectory database.
type Store struct {
	Path string
	db   *sql.DB
}

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: dbPath, db: db}, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY,
		phi TEXT,
		act_re REAL, act_im REAL,
		accepted INTEGER) STRICT`, tableTraj)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or overwrites one trajectory.
func (s *Store) Put(r Row) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	accepted := 0
	if r.Accepted {
		accepted = 1
	}
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, phi, act_re, act_im, accepted) VALUES (?, ?, ?, ?, ?)`, tableTraj)
	args := []any{r.ID, formatPhi(r.Phi), real(r.Action), imag(r.Action), accepted}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	return nil
}

// Get reads one trajectory by id.
func (s *Store) Get(id int) (Row, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT phi, act_re, act_im, accepted FROM %s WHERE id=?`, tableTraj)
	var phiStr string
	var re, im float64
	var accepted int
	err := s.db.QueryRowContext(ctx, sqlStr, id).Scan(&phiStr, &re, &im, &accepted)
	if err != nil {
		return Row{}, errors.Wrap(err, fmt.Sprintf("trajectory %d", id))
	}
	phi, err := parsePhi(phiStr)
	if err != nil {
		return Row{}, errors.Wrap(err, "")
	}
	return Row{ID: id, Phi: phi, Action: complex(re, im), Accepted: accepted != 0}, nil
}

// List reads all trajectories ordered by id.
func (s *Store) List() ([]Row, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT id, phi, act_re, act_im, accepted FROM %s ORDER BY id`, tableTraj)
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	var res []Row
	for rows.Next() {
		var r Row
		var phiStr string
		var re, im float64
		var accepted int
		if err := rows.Scan(&r.ID, &phiStr, &re, &im, &accepted); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if r.Phi, err = parsePhi(phiStr); err != nil {
			return nil, errors.Wrap(err, "")
		}
		r.Action = complex(re, im)
		r.Accepted = accepted != 0
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return res, nil
}

func formatPhi(phi []complex128) string {
	parts := make([]string, len(phi))
	for i, v := range phi {
		parts[i] = strconv.FormatComplex(v, 'g', -1, 128)
	}
	return strings.Join(parts, ",")
}

func parsePhi(s string) ([]complex128, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	phi := make([]complex128, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseComplex(p, 128)
		if err != nil {
			return nil, errors.Wrap(err, p)
		}
		phi[i] = v
	}
	return phi, nil
}
