package model

import "time"

// User is the owner of jobs and notification channels. The scheduler reads
// users only for tier gating; account lifecycle belongs to the external API.
type User struct {
	ID               string    `json:"id"                db:"id"`
	Email            string    `json:"email"             db:"email"`
	Name             string    `json:"name"              db:"name"`
	SubscriptionTier string    `json:"subscription_tier" db:"subscription_tier"`
	IsActive         bool      `json:"is_active"         db:"is_active"`
	CreatedAt        time.Time `json:"created_at"        db:"created_at"`
}
