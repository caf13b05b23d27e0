package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at dbPath and creates the downloads table
// if it doesn't exist.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY,
		ident TEXT,
		file_name TEXT,
		file_path TEXT,
		bytes INTEGER DEFAULT 0,
		status TEXT DEFAULT 'completed',
		finished_at DATETIME
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
