// Package history records connection attempts in SQLite. It stores who
// connected to which device and how the attempt ended; it never stores
// passwords or terminal output.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sshdock/sshdock/internal/broker"
	"github.com/sshdock/sshdock/internal/logging"
)

// Entry is one connection attempt.
type Entry struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	SessionID  string    `gorm:"uniqueIndex;not null" json:"sessionId"`
	DeviceUID  string    `gorm:"index;not null" json:"deviceUid"`
	DeviceName string    `json:"deviceName"`
	Username   string    `json:"username"`
	OpenedAt   time.Time `gorm:"index" json:"openedAt"`
	Connected  bool      `json:"connected"`
	Error      string    `json:"error,omitempty"`
}

// Outcome summarizes how the attempt ended so far.
func (e Entry) Outcome() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Connected:
		return "connected"
	}
	return "connecting"
}

// Store is safe for concurrent use; SQLite serializes writers.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// DefaultPath is history.db under the user's configuration directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(dir, "sshdock", "history.db")
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory store.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	} else {
		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Opened records a new attempt.
func (s *Store) Opened(id string, target broker.Target, at time.Time) error {
	e := Entry{
		SessionID:  id,
		DeviceUID:  target.DeviceUID,
		DeviceName: target.DeviceName,
		Username:   target.Username,
		OpenedAt:   at.UTC(),
	}
	if err := s.db.Create(&e).Error; err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	return nil
}

// Connected marks the attempt as having reached the device.
func (s *Store) Connected(id string) error {
	return s.update(id, map[string]any{"connected": true})
}

// Failed stores the title of the failure that ended the attempt. The first
// failure wins.
func (s *Store) Failed(id, title string) error {
	res := s.db.Model(&Entry{}).Where("session_id = ? AND error = ''", id).Update("error", title)
	if res.Error != nil {
		return fmt.Errorf("record failure: %w", res.Error)
	}
	return nil
}

func (s *Store) update(id string, fields map[string]any) error {
	res := s.db.Model(&Entry{}).Where("session_id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update history: %w", res.Error)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	err := s.db.WithContext(ctx).Order("opened_at DESC, id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return out, nil
}

// LastUser returns the username most recently used for device.
func (s *Store) LastUser(ctx context.Context, device string) (string, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("device_uid = ?", device).Order("opened_at DESC, id DESC").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query history: %w", err)
	}
	return e.Username, true, nil
}

// Prune deletes entries older than age.
func (s *Store) Prune(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age).UTC()
	res := s.db.WithContext(ctx).Where("opened_at < ?", cutoff).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// gormLogger routes GORM through the shared logger.
type gormLogger struct {
	level logger.LogLevel
}

func newGormLogger() logger.Interface {
	if logging.Logger.GetLevel() <= log.DebugLevel {
		return &gormLogger{level: logger.Info}
	}
	return &gormLogger{level: logger.Warn}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level}
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs failed and slow queries, and every query at debug level.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		logging.Logger.Error("query failed", "err", err, "took", elapsed, "sql", sql, "rows", rows)
	case elapsed > 200*time.Millisecond && l.level >= logger.Warn:
		sql, rows := fc()
		logging.Logger.Warn("slow query", "took", elapsed, "sql", sql, "rows", rows)
	case l.level >= logger.Info:
		sql, rows := fc()
		logging.Logger.Debug("query", "took", elapsed, "sql", sql, "rows", rows)
	}
}
