package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/backtest-orchestrator/internal/database"
)

const (
	errScanBacktest = "failed to scan backtest: %w"
	errScanSnapshot = "failed to scan portfolio snapshot: %w"
	errBatchExec    = "failed to execute batch statement %d: %w"

	// DefaultBatchSize bounds the statements queued per round trip
	DefaultBatchSize = 1000
)

// Repositories holds all repository implementations
type Repositories struct {
	Backtest        BacktestRepository
	Rule            RuleRepository
	Portfolio       PortfolioRepository
	Snapshot        SnapshotRepository
	HoldingSnapshot HoldingSnapshotRepository
	ExecutionLog    ExecutionLogRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Backtest:        NewPostgresBacktestRepository(db),
		Rule:            NewPostgresRuleRepository(db),
		Portfolio:       NewPostgresPortfolioRepository(db),
		Snapshot:        NewPostgresSnapshotRepository(db),
		HoldingSnapshot: NewPostgresHoldingSnapshotRepository(db),
		ExecutionLog:    NewPostgresExecutionLogRepository(db),
	}, nil
}

// sendChunked queues one statement per row and flushes every batchSize rows
func sendChunked(ctx context.Context, q database.Querier, sql string, rows [][]any, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		batch := &pgx.Batch{}
		for _, args := range rows[start:end] {
			batch.Queue(sql, args...)
		}

		if err := execBatch(ctx, q, batch, start); err != nil {
			return err
		}
	}
	return nil
}

func execBatch(ctx context.Context, q database.Querier, batch *pgx.Batch, offset int) (err error) {
	results := q.SendBatch(ctx, batch)
	defer func() {
		if closeErr := results.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close batch: %w", closeErr)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf(errBatchExec, offset+i, err)
		}
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
