package persistence

import "context"

// Specialist represents a stored specialist configuration for CRUD, scoped
// to the user that owns it.
type Specialist struct {
	ID                         int64             `json:"id"`
	UserID                     int64             `json:"userID"`
	Name                       string            `json:"name"`
	Description                string            `json:"description"`
	Provider                   string            `json:"provider"`
	BaseURL                    string            `json:"baseURL"`
	APIKey                     string            `json:"apiKey"`
	Model                      string            `json:"model"`
	SummaryContextWindowTokens int               `json:"summaryContextWindowTokens"`
	EnableTools                bool              `json:"enableTools"`
	Paused                     bool              `json:"paused"`
	AllowTools                 []string          `json:"allowTools"`
	ReasoningEffort            string            `json:"reasoningEffort"`
	System                     string            `json:"system"`
	ExtraHeaders               map[string]string `json:"extraHeaders"`
	ExtraParams                map[string]any    `json:"extraParams"`
}

// SpecialistsStore defines CRUD over specialists, scoped per user.
type SpecialistsStore interface {
	Init(ctx context.Context) error
	List(ctx context.Context, userID int64) ([]Specialist, error)
	GetByName(ctx context.Context, userID int64, name string) (Specialist, bool, error)
	Upsert(ctx context.Context, userID int64, s Specialist) (Specialist, error)
	Delete(ctx context.Context, userID int64, name string) error
}
