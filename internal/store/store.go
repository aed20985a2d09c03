// Package store persists simulation run history in SQLite through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one simulation run with its final summary.
type Run struct {
	ID        string     `json:"id" gorm:"primaryKey"`
	Name      string     `json:"name"`
	Status    string     `json:"status" gorm:"index"`
	Seed      int64      `json:"seed"`
	Scorer    string     `json:"scorer"`
	Devices   int        `json:"devices"`
	UAVs      int        `json:"uavs"`
	Config    string     `json:"config"` // JSON
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	Steps            int64   `json:"steps"`
	SimTime          float64 `json:"simTime"`
	TotalTasks       int64   `json:"totalTasks"`
	CompletedTasks   int64   `json:"completedTasks"`
	FailedTasks      int64   `json:"failedTasks"`
	DroppedTasks     int64   `json:"droppedTasks"`
	SuccessRate      float64 `json:"successRate"`
	AverageLatencyMs float64 `json:"averageLatencyMs"`
	TotalEnergyJ     float64 `json:"totalEnergyJ"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sample is a periodic metrics reading taken during a run.
type Sample struct {
	ID      uint    `json:"id" gorm:"primaryKey"`
	RunID   string  `json:"runId" gorm:"index"`
	Step    int64   `json:"step" gorm:"index"`
	SimTime float64 `json:"simTime"`
	Pending int     `json:"pending"`

	TotalTasks            int64   `json:"totalTasks"`
	CompletedTasks        int64   `json:"completedTasks"`
	FailedTasks           int64   `json:"failedTasks"`
	DroppedTasks          int64   `json:"droppedTasks"`
	AverageLatencyMs      float64 `json:"averageLatencyMs"`
	DeadlineMeetRate      float64 `json:"deadlineMeetRate"`
	TotalEnergyJ          float64 `json:"totalEnergyJ"`
	AverageUAVUtilization float64 `json:"averageUavUtilization"`

	CreatedAt time.Time `json:"createdAt"`
}

// Store wraps the gorm connection.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite file at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// SQLite serialises writers; one connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Run{}, &Sample{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateRun inserts run. StartedAt defaults to now.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	return s.db.WithContext(ctx).Create(run).Error
}

// GetRun returns the run with id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first. A non-positive limit returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	query := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&runs).Error
	return runs, err
}

// FinishRun stores the final summary of run and marks it ended.
func (s *Store) FinishRun(ctx context.Context, run *Run, status string) error {
	now := time.Now()
	run.Status = status
	run.EndedAt = &now
	res := s.db.WithContext(ctx).Model(&Run{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":             run.Status,
			"ended_at":           now,
			"steps":              run.Steps,
			"sim_time":           run.SimTime,
			"total_tasks":        run.TotalTasks,
			"completed_tasks":    run.CompletedTasks,
			"failed_tasks":       run.FailedTasks,
			"dropped_tasks":      run.DroppedTasks,
			"success_rate":       run.SuccessRate,
			"average_latency_ms": run.AverageLatencyMs,
			"total_energy_j":     run.TotalEnergyJ,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// SaveSample inserts one sample.
func (s *Store) SaveSample(ctx context.Context, sample *Sample) error {
	return s.db.WithContext(ctx).Create(sample).Error
}

// Samples returns the samples of a run in step order. A non-positive limit
// returns all.
func (s *Store) Samples(ctx context.Context, runID string, limit int) ([]Sample, error) {
	var samples []Sample
	query := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("step ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&samples).Error
	return samples, err
}
