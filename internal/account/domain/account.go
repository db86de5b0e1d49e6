package domain

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

var ErrAccountNotFound = errors.New("account not found")

// Account is one connected mailbox.
// HistoryID is the provider watermark up to which changes are applied.
type Account struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name"`
	HistoryID    uint64    `json:"history_id" gorm:"not null;default:0"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OAuthToken returns the stored credentials in oauth2 form.
func (a *Account) OAuthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		Expiry:       a.TokenExpiry,
		TokenType:    "Bearer",
	}
}
