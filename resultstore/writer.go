// Package resultstore persists kernel predictions in a SQLite database so
// that repeated analysis runs accumulate into one browsable record.
package resultstore

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

//go:generate mockgen -source writer.go -destination mock_writer.go -package resultstore -self_package "github.com/sarchlab/ecmsim/resultstore"

// An Entry is one stored prediction value: a single metric of one
// performance model evaluated on one kernel with one constant binding.
type Entry struct {
	RunID     string
	Kernel    string
	Constants string
	Model     string
	Metric    string
	Value     float64
}

// A Writer records prediction entries. Entries are buffered and written in
// batches; Flush forces the buffered entries out.
type Writer interface {
	Record(entry Entry)
	Flush()
	Close() error
}

// NewRunID returns an identifier that ties together all entries recorded by
// one analysis run.
func NewRunID() string {
	return xid.New().String()
}

// NewWriter creates a Writer backed by the SQLite database at path,
// creating the database on first use. Existing databases are appended to.
func NewWriter(path string) Writer {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Result database created: %s\n", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		panic(err)
	}

	return newWriterWithDB(db)
}

// NewWriterWithDB creates a Writer on an already-open database.
func NewWriterWithDB(db *sql.DB) Writer {
	return newWriterWithDB(db)
}

func newWriterWithDB(db *sql.DB) Writer {
	w := &sqliteWriter{
		DB:        db,
		batchSize: 1024,
	}

	w.mustExecute(createResultsTableSQL)

	atexit.Register(func() { w.Flush() })

	return w
}

const createResultsTableSQL = `
CREATE TABLE IF NOT EXISTS results (
	RunID TEXT,
	Kernel TEXT,
	Constants TEXT,
	Model TEXT,
	Metric TEXT,
	Value REAL
);`

type sqliteWriter struct {
	*sql.DB

	batchSize int
	buffered  []Entry
}

func (w *sqliteWriter) Record(entry Entry) {
	w.buffered = append(w.buffered, entry)

	if len(w.buffered) >= w.batchSize {
		w.Flush()
	}
}

func (w *sqliteWriter) Flush() {
	if len(w.buffered) == 0 {
		return
	}

	w.mustExecute("BEGIN TRANSACTION")
	defer w.mustExecute("COMMIT TRANSACTION")

	stmt, err := w.Prepare(
		"INSERT INTO results VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		panic(err)
	}
	defer stmt.Close()

	for _, e := range w.buffered {
		_, err := stmt.Exec(
			e.RunID, e.Kernel, e.Constants, e.Model, e.Metric, e.Value)
		if err != nil {
			panic(err)
		}
	}

	w.buffered = nil
}

func (w *sqliteWriter) Close() error {
	w.Flush()

	return w.DB.Close()
}

func (w *sqliteWriter) mustExecute(query string) sql.Result {
	res, err := w.Exec(query)
	if err != nil {
		fmt.Printf("Failed to execute: %s\n", query)
		panic(err)
	}

	return res
}
