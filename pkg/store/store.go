package store

import (
	"errors"
	"time"

	"appraiserai/pkg/domain"
)

var (
	ErrEmptyAppraisalText = errors.New("appraisal text is required")
	ErrAppraisalExists    = errors.New("appraisal already exists")
)

// Store defines persistence operations for users and appraisals.
// Appraisals are append-only: after creation only the image key may change.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UserCount() (int, error)

	// appraisals
	SaveAppraisal(domain.Appraisal) error
	GetAppraisal(id string) (domain.Appraisal, bool, error)
	ListAppraisals(limit int) ([]domain.Appraisal, error)
	ListAppraisalsByOwner(ownerID string, limit int) ([]domain.Appraisal, error)
	SetAppraisalImage(id, imageKey string) error
	DeleteAppraisal(id string) error
	AppraisalStats(ownerID string, now time.Time) (domain.AppraisalStats, error)
}

const defaultListLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}

func dayStart(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func monthStart(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}
