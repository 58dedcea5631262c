package clients

import (
	"database/sql"
	"fmt"
	"tsa/lib/config"
	"tsa/lib/constants"

	_ "github.com/lib/pq"
)

// NewPostgresSQLClient creates the compliance database pool with connection settings optimized for Lambda
func NewPostgresSQLClient(dbConfig config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, dbConfig.Port, dbConfig.Username, dbConfig.Password, dbConfig.Name, dbConfig.SSLMode,
	)

	db, err := sql.Open(constants.DRIVER_NAME, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	// One request per invocation, so a tiny pool is enough
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
