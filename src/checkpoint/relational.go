package checkpoint

import (
	"database/sql"
	"math/big"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"lcs35/src/session"
)

// sqliteMagic is the fixed 16-byte header every SQLite database file begins
// with; used to tell the relational format apart from the flat text format
// without relying on the file extension (§4.2.2).
var sqliteMagic = []byte("SQLite format 3\x00")

const createCheckpointTable = `
CREATE TABLE IF NOT EXISTS checkpoint (
	i INTEGER UNIQUE,
	w TEXT,
	first_computed TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	last_computed TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// openRelational opens (creating if necessary) the single-table relational
// checkpoint database at path and ensures its schema exists.
func openRelational(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: opening relational store")
	}
	if _, err := db.Exec(createCheckpointTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "checkpoint: creating checkpoint table")
	}
	return db, nil
}

// loadRelational reads the row with the greatest i. The puzzle parameters
// (n, c, t) are not stored in the relational file — they are reconstituted
// from the LCS35 defaults, since they are compile-time constants of the
// published challenge (§4.2.2). An empty table (no rows yet) yields the
// untouched defaults from session.New, matching the original's behaviour
// when db_get_last_i_w finds no rows.
func loadRelational(path string) (*session.Session, error) {
	db, err := openRelational(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	s := session.New()

	row := db.QueryRow(`SELECT i, w FROM checkpoint ORDER BY i DESC LIMIT 1`)
	var i int64
	var w string
	switch err := row.Scan(&i, &w); err {
	case nil:
		s.I = uint64(i)
		parsed, ok := parseDecimal(w)
		if !ok {
			return nil, errors.Errorf("checkpoint: invalid decimal w = %q", w)
		}
		s.W = parsed
	case sql.ErrNoRows:
		// database exists but has no checkpoints yet; stay at defaults
	default:
		return nil, errors.Wrap(err, "checkpoint: querying last checkpoint")
	}

	return s, nil
}

// saveRelational appends a new checkpoint row. Durability here is delegated
// to SQLite's own journal/WAL rather than the temp-file-plus-rename dance
// used for the text format (§4.2.3 describes the generic protocol; a
// single-file embedded relational database is its own atomic collaborator).
// INSERT OR IGNORE makes repeated saves at the same i idempotent, which the
// validator (§4.3) relies on when it densifies the checkpoint trail.
func saveRelational(path string, s *session.Session) error {
	db, err := openRelational(path)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(
		`INSERT OR IGNORE INTO checkpoint (i, w) VALUES (?, ?)`,
		int64(s.I), s.W.String(),
	)
	if err != nil {
		return errors.Wrap(err, "checkpoint: inserting checkpoint row")
	}
	return nil
}

// UpdateLastComputed touches last_computed on the row for i, used by the
// validator when it re-confirms an existing checkpoint without creating a
// new one.
func UpdateLastComputed(path string, i uint64) error {
	db, err := openRelational(path)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(
		`UPDATE checkpoint SET last_computed = CURRENT_TIMESTAMP WHERE i = ?`,
		int64(i),
	)
	return errors.Wrap(err, "checkpoint: updating last_computed")
}

// ListCheckpoints returns every stored (i, w) pair in increasing order of i,
// for use by the validator (§4.3 Partitioning).
func ListCheckpoints(path string) ([]Checkpoint, error) {
	db, err := openRelational(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT i, w FROM checkpoint ORDER BY i`)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: listing checkpoints")
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var i int64
		var w string
		if err := rows.Scan(&i, &w); err != nil {
			return nil, errors.Wrap(err, "checkpoint: scanning checkpoint row")
		}
		parsed, ok := parseDecimal(w)
		if !ok {
			return nil, errors.Errorf("checkpoint: invalid decimal w = %q", w)
		}
		out = append(out, Checkpoint{I: uint64(i), W: parsed})
	}
	return out, errors.Wrap(rows.Err(), "checkpoint: iterating checkpoints")
}

// Checkpoint is a single (i, w) row read back from a relational store.
type Checkpoint struct {
	I uint64
	W *big.Int
}
