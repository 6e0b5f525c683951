package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user may see and delete every appraisal.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanManage reports whether the user owns the appraisal or is an admin.
func (u User) CanManage(a Appraisal) bool {
	return u.IsAdmin() || (a.OwnerID != "" && a.OwnerID == u.ID)
}

// Usage holds token accounting reported by the vision API.
type Usage struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
	TotalTokens      int    `json:"totalTokens,omitempty"`
}

// Appraisal is the stored text result of one image-plus-prompt request.
// It is never mutated after creation except for the image reference and deletion.
type Appraisal struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"ownerId,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	TemplateID    string    `json:"templateId"`
	ImageKey      string    `json:"imageKey,omitempty"`
	AppraisalText string    `json:"appraisalText"`
	Usage         Usage     `json:"usage"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AppraisalStats summarises appraisal counts for a scope (one owner or everyone).
type AppraisalStats struct {
	Total      int            `json:"total"`
	Today      int            `json:"today"`
	Month      int            `json:"month"`
	ByTemplate map[string]int `json:"byTemplate"`
}

// ProductContent is the marketing copy drafted for one batch image.
type ProductContent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceRange  string `json:"priceRange"`
}

// BatchItem is one processed image in a batch session.
type BatchItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Original    []byte `json:"-"`
	Optimized   []byte `json:"-"`
	MIMEType    string `json:"mimeType"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceRange  string `json:"priceRange"`
	Editing     bool   `json:"editing"`
	Error       string `json:"error,omitempty"`
}

// Batch groups processed items for one browser-like session.
type Batch struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"ownerId"`
	Items     []BatchItem `json:"items"`
	CreatedAt time.Time   `json:"createdAt"`
}
