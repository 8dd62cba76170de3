package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/config"
)

// requiredTables must exist before the service accepts traffic
var requiredTables = []string{
	"backtests",
	"backtest_rules",
	"portfolio_snapshots",
	"holding_snapshots",
	"execution_logs",
	"portfolio_holdings",
}

// Initialize creates a database connection pool and verifies the schema is migrated
func Initialize(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	missing, err := db.missingTables(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if len(missing) > 0 {
		db.Close()
		return nil, fmt.Errorf("schema not migrated, missing tables: %s (apply migrations/0001_init.sql)", strings.Join(missing, ", "))
	}

	log.WithFields(logrus.Fields{
		"component": "database",
		"host":      cfg.Database.Host,
		"database":  cfg.Database.Name,
	}).Info("Database connection established")

	return db, nil
}

func (db *DB) missingTables(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_name = ANY($1)`, requiredTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]bool, len(requiredTables))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, table := range requiredTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}
	return missing, nil
}
