package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/yourusername/backtest-orchestrator/internal/events"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/worker"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeTx runs fn inline without a database
type fakeTx struct {
	calls int
}

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// memBacktests is an in-memory BacktestRepository that keeps status history
type memBacktests struct {
	mu          sync.Mutex
	nextID      int64
	rows        map[int64]*models.Backtest
	history     map[int64][]models.BacktestStatus
	statusReads int
	// statusErrs makes UpdateStatus fail for the given target status
	statusErrs map[models.BacktestStatus]error
}

func newMemBacktests(rows ...*models.Backtest) *memBacktests {
	m := &memBacktests{
		nextID:  100,
		rows:    make(map[int64]*models.Backtest),
		history: make(map[int64][]models.BacktestStatus),
	}
	for _, b := range rows {
		if b.Status == "" {
			b.Status = models.StatusCreated
		}
		m.rows[b.ID] = b
	}
	return m
}

func (m *memBacktests) Create(_ context.Context, b *models.Backtest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	if b.Status == "" {
		b.Status = models.StatusCreated
	}
	cp := *b
	m.rows[b.ID] = &cp
	return nil
}

func (m *memBacktests) GetByID(_ context.Context, id int64) (*models.Backtest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.IsDeleted() {
		return nil, models.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBacktests) ListByPortfolio(_ context.Context, portfolioID int64) ([]*models.Backtest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Backtest
	for _, b := range m.rows {
		if b.PortfolioID == portfolioID && !b.IsDeleted() {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memBacktests) Update(_ context.Context, b *models.Backtest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[b.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *b
	m.rows[b.ID] = &cp
	return nil
}

func (m *memBacktests) SoftDelete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.IsDeleted() {
		return models.ErrNotFound
	}
	now := time.Now()
	b.DeletedAt = &now
	return nil
}

func (m *memBacktests) UpdateStatus(_ context.Context, id int64, status models.BacktestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.IsDeleted() {
		return models.ErrNotFound
	}
	if err := m.statusErrs[status]; err != nil {
		return err
	}
	b.Status = status
	b.StatusUpdatedAt = time.Now().UTC()
	m.history[id] = append(m.history[id], status)
	return nil
}

func (m *memBacktests) MarkRunning(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.IsDeleted() {
		return models.ErrNotFound
	}
	if b.Status == models.StatusRunning {
		return models.ErrStatusConflict
	}
	b.Status = models.StatusRunning
	b.StatusUpdatedAt = time.Now().UTC()
	m.history[id] = append(m.history[id], models.StatusRunning)
	return nil
}

func (m *memBacktests) UpdateResultStatus(_ context.Context, id int64, status models.ResultStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.IsDeleted() {
		return models.ErrNotFound
	}
	b.ResultStatus = &status
	return nil
}

func (m *memBacktests) GetStatus(_ context.Context, id int64) (models.BacktestStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.IsDeleted() {
		return "", models.ErrNotFound
	}
	return b.Status, nil
}

func (m *memBacktests) StatusesByPortfolio(_ context.Context, portfolioID int64) (map[int64]models.BacktestStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusReads++
	out := make(map[int64]models.BacktestStatus)
	for id, b := range m.rows {
		if b.PortfolioID == portfolioID && !b.IsDeleted() {
			out[id] = b.Status
		}
	}
	return out, nil
}

func (m *memBacktests) ListRunningSince(_ context.Context, cutoff time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for id, b := range m.rows {
		if b.Status == models.StatusRunning && !b.IsDeleted() && b.StatusUpdatedAt.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memBacktests) status(id int64) models.BacktestStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

func (m *memBacktests) resultStatus(id int64) models.ResultStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[id].ResultStatus == nil {
		return ""
	}
	return *m.rows[id].ResultStatus
}

func (m *memBacktests) transitions(id int64) []models.BacktestStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.BacktestStatus(nil), m.history[id]...)
}

func (m *memBacktests) setStatusAge(id int64, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].StatusUpdatedAt = time.Now().UTC().Add(-age)
}

// MockRuleRepository mocks the rule repository
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) Create(ctx context.Context, r *models.RuleSet) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RuleSet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RuleSet), args.Error(1)
}

func (m *MockRuleRepository) Update(ctx context.Context, r *models.RuleSet) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// MockSnapshotRepository mocks the result summary repository
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Create(ctx context.Context, s *models.PortfolioSnapshot) (int64, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSnapshotRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSnapshotRepository) GetLatestByBacktest(ctx context.Context, backtestID int64) (*models.PortfolioSnapshot, error) {
	args := m.Called(ctx, backtestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PortfolioSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) AttachReport(ctx context.Context, id int64, content string, createdAt time.Time) error {
	return m.Called(ctx, id, content, createdAt).Error(0)
}

// MockHoldingSnapshotRepository mocks the holding snapshot repository
type MockHoldingSnapshotRepository struct {
	mock.Mock
}

func (m *MockHoldingSnapshotRepository) InsertBatch(ctx context.Context, holdings []models.HoldingSnapshot, batchSize int) error {
	return m.Called(ctx, holdings, batchSize).Error(0)
}

func (m *MockHoldingSnapshotRepository) ListBySnapshot(ctx context.Context, snapshotID int64) ([]models.HoldingSnapshot, error) {
	args := m.Called(ctx, snapshotID)
	return args.Get(0).([]models.HoldingSnapshot), args.Error(1)
}

// MockExecutionLogRepository mocks the execution log repository
type MockExecutionLogRepository struct {
	mock.Mock
}

func (m *MockExecutionLogRepository) InsertBatch(ctx context.Context, logs []models.ExecutionLog, batchSize int) error {
	return m.Called(ctx, logs, batchSize).Error(0)
}

func (m *MockExecutionLogRepository) ListBySnapshot(ctx context.Context, snapshotID int64) ([]models.ExecutionLog, error) {
	args := m.Called(ctx, snapshotID)
	return args.Get(0).([]models.ExecutionLog), args.Error(1)
}

// MockResultPersister mocks the persistence coordinator
type MockResultPersister struct {
	mock.Mock
}

func (m *MockResultPersister) Persist(ctx context.Context, backtestID int64, payload *models.CallbackPayload) (int64, error) {
	args := m.Called(ctx, backtestID, payload)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockResultPersister) Discard(ctx context.Context, backtestID, summaryID int64, cause error) error {
	return m.Called(ctx, backtestID, summaryID, cause).Error(0)
}

// MockReportGenerator mocks report enrichment
type MockReportGenerator struct {
	mock.Mock
}

func (m *MockReportGenerator) GenerateAndAttach(ctx context.Context, backtestID int64) error {
	return m.Called(ctx, backtestID).Error(0)
}

// queuedPool holds tasks until the test runs them
type queuedPool struct {
	mu     sync.Mutex
	names  []string
	tasks  []worker.Task
	reject error
}

func (p *queuedPool) Submit(name string, fn worker.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject != nil {
		return p.reject
	}
	p.names = append(p.names, name)
	p.tasks = append(p.tasks, fn)
	return nil
}

func (p *queuedPool) runAll(ctx context.Context) {
	p.mu.Lock()
	tasks := p.tasks
	p.tasks = nil
	p.mu.Unlock()
	for _, t := range tasks {
		t(ctx)
	}
}

func (p *queuedPool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// recordingEngine records submitted backtest ids
type recordingEngine struct {
	mu  sync.Mutex
	ids []int64
}

func (e *recordingEngine) Submit(_ context.Context, backtestID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, backtestID)
}

func (e *recordingEngine) submitted() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.ids...)
}

// recordingPublisher captures published signals
type recordingPublisher struct {
	mu      sync.Mutex
	signals []events.Signal
	err     error
}

func (p *recordingPublisher) Publish(sig events.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.signals = append(p.signals, sig)
	return nil
}

func boolPtr(b bool) *bool        { return &b }
func int64Ptr(v int64) *int64     { return &v }
func floatPtr(v float64) *float64 { return &v }
