package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect captures the few places the supported SQL engines disagree.
type dialect struct {
	name      string
	driver    string
	timestamp string
	bigText   string
	numbered  bool // $1, $2 placeholders instead of ?
}

var (
	dialectSQLite   = dialect{name: "sqlite", driver: "sqlite", timestamp: "DATETIME", bigText: "TEXT"}
	dialectPostgres = dialect{name: "postgres", driver: "postgres", timestamp: "TIMESTAMPTZ", bigText: "TEXT", numbered: true}
	dialectMySQL    = dialect{name: "mysql", driver: "mysql", timestamp: "DATETIME(6)", bigText: "LONGTEXT"}
)

// DB wraps a SQL connection holding the page tables.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// New creates a new DB, opening (or creating) the SQLite file at dbPath.
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer, limit to a single connection to prevent SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	return initDB(conn, dialectSQLite)
}

// openSQL connects to a server database with the given dialect.
func openSQL(d dialect, dsn string) (*DB, error) {
	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	conn.SetMaxOpenConns(5)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	return initDB(conn, d)
}

func initDB(conn *sql.DB, d dialect) (*DB, error) {
	db := &DB{conn: conn, dialect: d}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Dialect returns the engine name: sqlite, postgres or mysql.
func (db *DB) Dialect() string {
	return db.dialect.name
}

// q rewrites ? placeholders for engines that number them.
func (db *DB) q(query string) string {
	if !db.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) migrate() error {
	d := db.dialect
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pages (
			id VARCHAR(64) PRIMARY KEY,
			label TEXT NOT NULL,
			route TEXT NOT NULL,
			browser_title TEXT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			content_json %[2]s NOT NULL,
			native_entry %[2]s NOT NULL,
			created_at %[1]s NOT NULL,
			updated_at %[1]s NOT NULL
		)`, d.timestamp, d.bigText),
	}
	if d.name == "mysql" {
		// MySQL has no CREATE INDEX IF NOT EXISTS, declare it inline
		migrations = append(migrations, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page_history (
			id VARCHAR(32) PRIMARY KEY,
			page_id VARCHAR(64) NOT NULL,
			label TEXT NOT NULL,
			snapshot_json %[2]s NOT NULL,
			created_at %[1]s NOT NULL,
			INDEX idx_page_history_page (page_id)
		)`, d.timestamp, d.bigText))
	} else {
		migrations = append(migrations,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page_history (
				id VARCHAR(32) PRIMARY KEY,
				page_id VARCHAR(64) NOT NULL,
				label TEXT NOT NULL,
				snapshot_json %[2]s NOT NULL,
				created_at %[1]s NOT NULL
			)`, d.timestamp, d.bigText),
			`CREATE INDEX IF NOT EXISTS idx_page_history_page ON page_history(page_id)`,
		)
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", strings.TrimSpace(m)[:40], err)
		}
	}
	return nil
}
