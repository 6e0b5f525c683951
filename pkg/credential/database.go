package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// APIKeyModel is the one-row table holding the current key.
type APIKeyModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	APIKey    string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (APIKeyModel) TableName() string {
	return "appraiser_api_keys"
}

// DBProvider stores the key in a table that never holds more than one row.
type DBProvider struct {
	db *gorm.DB
}

// NewDBProvider migrates the key table and returns the provider.
func NewDBProvider(db *gorm.DB) (*DBProvider, error) {
	if db == nil {
		return nil, errors.New("credential: db is required")
	}
	if err := db.AutoMigrate(&APIKeyModel{}); err != nil {
		return nil, fmt.Errorf("migrate api key table: %w", err)
	}
	return &DBProvider{db: db}, nil
}

func (p *DBProvider) Get(ctx context.Context) (string, bool, error) {
	var model APIKeyModel
	if err := p.db.WithContext(ctx).Order("id DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	key := strings.TrimSpace(model.APIKey)
	return key, key != "", nil
}

// Set deletes every stored key and inserts the new one in a single transaction.
func (p *DBProvider) Set(ctx context.Context, key string) error {
	key, err := ValidateKey(key)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&APIKeyModel{}).Error; err != nil {
			return fmt.Errorf("clear api keys: %w", err)
		}
		if err := tx.Create(&APIKeyModel{APIKey: key, CreatedAt: time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("insert api key: %w", err)
		}
		return nil
	})
}

func (p *DBProvider) Clear(ctx context.Context) error {
	return p.db.WithContext(ctx).Where("1 = 1").Delete(&APIKeyModel{}).Error
}
