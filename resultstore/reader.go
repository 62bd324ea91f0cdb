package resultstore

import (
	"database/sql"
	"fmt"
)

// A Reader retrieves stored prediction entries.
type Reader interface {
	// Kernels lists the distinct kernel names that have recorded results.
	Kernels() ([]string, error)

	// Results returns every entry recorded for one kernel, grouped by
	// constant binding, then model, then metric. Later runs of the same
	// combination appear after earlier ones.
	Results(kernel string) ([]Entry, error)

	// Close closes the reader.
	Close() error
}

// NewReader creates a Reader on the SQLite database at path.
func NewReader(path string) (Reader, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	return &sqliteReader{DB: db}, nil
}

// NewReaderWithDB creates a Reader on an already-open database.
func NewReaderWithDB(db *sql.DB) Reader {
	return &sqliteReader{DB: db}
}

type sqliteReader struct {
	*sql.DB
}

func (r *sqliteReader) Kernels() ([]string, error) {
	rows, err := r.Query(
		"SELECT DISTINCT Kernel FROM results ORDER BY Kernel")
	if err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	defer rows.Close()

	var kernels []string
	for rows.Next() {
		var kernel string
		if err := rows.Scan(&kernel); err != nil {
			return nil, err
		}

		kernels = append(kernels, kernel)
	}

	return kernels, rows.Err()
}

func (r *sqliteReader) Results(kernel string) ([]Entry, error) {
	rows, err := r.Query(
		`SELECT RunID, Kernel, Constants, Model, Metric, Value
		 FROM results WHERE Kernel = ?
		 ORDER BY Constants, Model, Metric, RunID`, kernel)
	if err != nil {
		return nil, fmt.Errorf("query results of %s: %w", kernel, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.RunID, &e.Kernel, &e.Constants, &e.Model, &e.Metric, &e.Value)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.DB.Close()
}
