package store

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	name:          "postgres",
	timestampType: "TIMESTAMPTZ",
	addColumn: func(table, col string) string {
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", table, col)
	},
	ignoreAddColumnErr: func(error) bool { return false },
	numbered:           true,
}

// NewPostgresStore connects to PostgreSQL, e.g.
// "user=loans password=secret host=localhost port=5432 dbname=loans sslmode=disable".
func NewPostgresStore(dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	s, err := newSQLStore(db, postgresDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Println("PostgreSQL connection established and schema initialized.")
	return s, nil
}
