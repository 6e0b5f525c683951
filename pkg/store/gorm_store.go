package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"appraiserai/pkg/domain"
)

const migrateLockID int64 = 51842207

const sqlitePrefix = "sqlite://"

// GormStore implements Store using GORM on Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// OpenDB opens a database from a DSN. "sqlite://<path>" (or "sqlite://:memory:")
// selects the embedded SQLite driver; anything else is treated as a Postgres DSN.
func OpenDB(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, sqlitePrefix) {
		dialector = sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	} else {
		dialector = postgres.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		// A single connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB runs auto-migrations on an existing connection.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &AppraisalModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// DB exposes the connection so other components can share it.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withMigrationLock serializes migrations across replicas on Postgres.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	if db.Dialector.Name() != "postgres" {
		return fn(db)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "role", "status", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveAppraisal inserts a new appraisal. Existing ids are rejected.
func (s *GormStore) SaveAppraisal(a domain.Appraisal) error {
	if strings.TrimSpace(a.AppraisalText) == "" {
		return ErrEmptyAppraisalText
	}
	var count int64
	if err := s.db.Model(&AppraisalModel{}).Where("id = ?", a.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrAppraisalExists
	}
	model := appraisalToModel(a)
	return s.db.Create(&model).Error
}

// GetAppraisal retrieves one appraisal.
func (s *GormStore) GetAppraisal(id string) (domain.Appraisal, bool, error) {
	var model AppraisalModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Appraisal{}, false, nil
		}
		return domain.Appraisal{}, false, err
	}
	return appraisalFromModel(model), true, nil
}

// ListAppraisals returns the newest appraisals across all owners.
func (s *GormStore) ListAppraisals(limit int) ([]domain.Appraisal, error) {
	return s.listAppraisals(limit)
}

// ListAppraisalsByOwner returns the newest appraisals of one owner.
func (s *GormStore) ListAppraisalsByOwner(ownerID string, limit int) ([]domain.Appraisal, error) {
	return s.listAppraisals(limit, "owner_id = ?", ownerID)
}

func (s *GormStore) listAppraisals(limit int, conds ...any) ([]domain.Appraisal, error) {
	var models []AppraisalModel
	tx := s.db.Order("created_at DESC").Order("id DESC").Limit(normalizeLimit(limit))
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Appraisal, 0, len(models))
	for _, m := range models {
		res = append(res, appraisalFromModel(m))
	}
	return res, nil
}

// SetAppraisalImage records where the source image was written.
func (s *GormStore) SetAppraisalImage(id, imageKey string) error {
	return s.db.Model(&AppraisalModel{}).Where("id = ?", id).Update("image_key", imageKey).Error
}

// DeleteAppraisal removes an appraisal record.
func (s *GormStore) DeleteAppraisal(id string) error {
	return s.db.Delete(&AppraisalModel{}, "id = ?", id).Error
}

// AppraisalStats counts appraisals for ownerID, or for everyone when ownerID is empty.
func (s *GormStore) AppraisalStats(ownerID string, now time.Time) (domain.AppraisalStats, error) {
	scope := func() *gorm.DB {
		tx := s.db.Model(&AppraisalModel{})
		if ownerID != "" {
			tx = tx.Where("owner_id = ?", ownerID)
		}
		return tx
	}
	stats := domain.AppraisalStats{ByTemplate: map[string]int{}}

	var total, today, month int64
	if err := scope().Count(&total).Error; err != nil {
		return stats, err
	}
	if err := scope().Where("created_at >= ?", dayStart(now)).Count(&today).Error; err != nil {
		return stats, err
	}
	if err := scope().Where("created_at >= ?", monthStart(now)).Count(&month).Error; err != nil {
		return stats, err
	}
	var rows []struct {
		TemplateID string
		Count      int
	}
	if err := scope().Select("template_id, COUNT(*) AS count").Group("template_id").Scan(&rows).Error; err != nil {
		return stats, err
	}
	stats.Total, stats.Today, stats.Month = int(total), int(today), int(month)
	for _, row := range rows {
		stats.ByTemplate[row.TemplateID] = row.Count
	}
	return stats, nil
}
