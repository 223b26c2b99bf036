// Package results keeps a local leaderboard of race runs in SQLite.
package results

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opd-ai/go-spacerace/pkg/course"
	"github.com/opd-ai/go-spacerace/pkg/engine"
	"github.com/opd-ai/go-spacerace/pkg/logging"
	"github.com/opd-ai/go-spacerace/pkg/race"
	"github.com/opd-ai/go-spacerace/pkg/validation"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// ErrNoRuns is returned when a query has no matching run
var ErrNoRuns = errors.New("results: no runs")

// Run is one completed race attempt
type Run struct {
	ID             uint      `json:"id" gorm:"primarykey"`
	CreatedAt      time.Time `json:"createdAt" gorm:"index:idx_run_created"`
	SessionID      string    `json:"sessionId" gorm:"size:36;uniqueIndex"`
	Pilot          string    `json:"pilot" gorm:"size:160;index:idx_run_pilot"` // escaped names can grow
	CourseName     string    `json:"courseName" gorm:"size:64"`
	CourseChecksum string    `json:"courseChecksum" gorm:"size:16;index:idx_run_course"` // hex, sqlite has no uint64
	Status         string    `json:"status" gorm:"size:16;index:idx_run_course"`
	GatesPassed    int       `json:"gatesPassed"`
	TotalGates     int       `json:"totalGates"`
	RaceTicks      uint64    `json:"raceTicks"`
	TickRate       int       `json:"tickRate"`
	Seconds        float64   `json:"seconds"`
	Splits         []uint64  `json:"splits" gorm:"serializer:json"`
	CollidedWith   int       `json:"collidedWith"`
	ReplayDir      string    `json:"replayDir,omitempty" gorm:"size:255"`
}

// ChecksumKey formats a course checksum the way runs store it
func ChecksumKey(checksum uint64) string {
	return fmt.Sprintf("%016x", checksum)
}

// Checksum parses the stored course checksum
func (r Run) Checksum() (uint64, error) {
	return strconv.ParseUint(r.CourseChecksum, 16, 64)
}

// NewRun builds a run from the final snapshot of a session
func NewRun(snap engine.Snapshot, c *course.Course, pilot string, tickRate int) Run {
	run := Run{
		SessionID:      snap.SessionID,
		Pilot:          pilot,
		CourseName:     c.Name(),
		CourseChecksum: ChecksumKey(c.Checksum()),
		Status:         snap.Race.Status.String(),
		GatesPassed:    snap.Race.GatesPassed,
		TotalGates:     snap.Race.TotalGates,
		RaceTicks:      snap.Race.Ticks,
		TickRate:       tickRate,
		Splits:         append([]uint64(nil), snap.Race.Splits...),
		CollidedWith:   snap.Race.CollidedWith,
	}
	if tickRate > 0 {
		run.Seconds = float64(snap.Race.Ticks) / float64(tickRate)
	}
	return run
}

// Store persists runs with gorm on SQLite
type Store struct {
	db     *gorm.DB
	logger *logging.Logger
}

// Open opens or creates the database at path and migrates the schema
func Open(path string, log *logging.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("results: database path must be provided")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("results: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("results: access sql interface: %w", err)
	}
	// Every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA user_version = 1;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA temp_store = MEMORY;",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("results: setting pragma: %w", err)
		}
	}

	if err := db.AutoMigrate(&Run{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("results: migrate: %w", err)
	}

	log.Info(context.Background(), "results database ready", "path", path)
	return &Store{db: db, logger: log}, nil
}

// Close closes the database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores run. The pilot name is validated and sanitized first.
func (s *Store) Record(ctx context.Context, run *Run) error {
	pilot, err := validation.ValidatePilotName(run.Pilot)
	if err != nil {
		return fmt.Errorf("results: %w", err)
	}
	run.Pilot = pilot
	if run.SessionID == "" {
		return errors.New("results: run has no session ID")
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return logging.WrapError(err, "results: record run %s", run.SessionID)
	}

	s.logger.Info(ctx, "run recorded",
		"session_id", run.SessionID,
		"status", run.Status,
		"race_ticks", run.RaceTicks,
	)
	return nil
}

// Best returns the fastest finished runs on a course, fastest first. A
// non-positive limit returns every run.
func (s *Store) Best(ctx context.Context, courseChecksum uint64, limit int) ([]Run, error) {
	var runs []Run
	err := s.finished(ctx, courseChecksum).
		Order("seconds ASC, created_at ASC, id ASC").
		Limit(queryLimit(limit)).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("results: best runs: %w", err)
	}
	return runs, nil
}

// PersonalBest returns the fastest finished run of pilot on a course
func (s *Store) PersonalBest(ctx context.Context, courseChecksum uint64, pilot string) (Run, error) {
	var run Run
	err := s.finished(ctx, courseChecksum).
		Where("pilot = ?", pilot).
		Order("seconds ASC, created_at ASC, id ASC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, ErrNoRuns
	}
	if err != nil {
		return Run{}, fmt.Errorf("results: personal best: %w", err)
	}
	return run, nil
}

// Recent returns the latest runs of pilot on any course, newest first.
// An empty pilot matches everyone.
func (s *Store) Recent(ctx context.Context, pilot string, limit int) ([]Run, error) {
	query := s.db.WithContext(ctx).Model(&Run{})
	if pilot != "" {
		query = query.Where("pilot = ?", pilot)
	}
	var runs []Run
	if err := query.Order("created_at DESC, id DESC").Limit(queryLimit(limit)).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("results: recent runs: %w", err)
	}
	return runs, nil
}

func (s *Store) finished(ctx context.Context, courseChecksum uint64) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&Run{}).
		Where("course_checksum = ? AND status = ?", ChecksumKey(courseChecksum), race.Finished.String())
}

// queryLimit maps non-positive limits to gorm's "no limit"
func queryLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
