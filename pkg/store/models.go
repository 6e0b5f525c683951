package store

import (
	"time"

	"gorm.io/datatypes"

	"appraiserai/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Status       string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type AppraisalModel struct {
	ID            string `gorm:"primaryKey"`
	OwnerID       string `gorm:"index"`
	Title         string `gorm:"not null"`
	Description   string `gorm:"type:text"`
	TemplateID    string `gorm:"not null;index"`
	ImageKey      string
	AppraisalText string                           `gorm:"type:text;not null"`
	Usage         datatypes.JSONType[domain.Usage] `gorm:"column:usage"`
	CreatedAt     time.Time                        `gorm:"not null;index"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func appraisalToModel(a domain.Appraisal) AppraisalModel {
	return AppraisalModel{
		ID:            a.ID,
		OwnerID:       a.OwnerID,
		Title:         a.Title,
		Description:   a.Description,
		TemplateID:    a.TemplateID,
		ImageKey:      a.ImageKey,
		AppraisalText: a.AppraisalText,
		Usage:         datatypes.NewJSONType(a.Usage),
		CreatedAt:     a.CreatedAt,
	}
}

func appraisalFromModel(m AppraisalModel) domain.Appraisal {
	return domain.Appraisal{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Title:         m.Title,
		Description:   m.Description,
		TemplateID:    m.TemplateID,
		ImageKey:      m.ImageKey,
		AppraisalText: m.AppraisalText,
		Usage:         m.Usage.Data(),
		CreatedAt:     m.CreatedAt,
	}
}
