package domain

import (
	"context"
	"time"
)

// Person is one entry of an account's address book, keyed by the
// provider resource name.
type Person struct {
	AccountID    string    `json:"-" gorm:"primaryKey"`
	ResourceName string    `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"index;not null"`
	PhotoURL     string    `json:"photo_url"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Person) TableName() string {
	return "people"
}

// EmailAddress links an address to a Person. An address is stored once
// per account.
type EmailAddress struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"-" gorm:"uniqueIndex:idx_email_addresses_account_email,priority:1;not null"`
	PersonID  string `json:"person_id" gorm:"index;not null"`
	Email     string `json:"email" gorm:"uniqueIndex:idx_email_addresses_account_email,priority:2;not null"`
}

func (EmailAddress) TableName() string {
	return "email_addresses"
}

// Contact is a person as returned by the provider and by search.
type Contact struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	PhotoURL       string   `json:"photo_url,omitempty"`
	EmailAddresses []string `json:"email_addresses"`
}

// ContactPage is one page of the provider's connection listing.
type ContactPage struct {
	Contacts      []Contact
	NextPageToken string
}

// ContactSource lists the address book of one account.
type ContactSource interface {
	ListContacts(ctx context.Context, pageToken string) (*ContactPage, error)
}
