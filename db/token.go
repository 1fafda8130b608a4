package db

import "time"

// tokenRowID is the primary key of the single stored credential row.
const tokenRowID = 1

// Token represents the stored credential pair.
type Token struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    string    `json:"expires_at,omitempty"` // RFC3339, empty when unknown
	UpdatedAt    time.Time `json:"updated_at"`
}
