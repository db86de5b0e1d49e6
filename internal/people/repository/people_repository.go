package repository

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid"
	emaildomain "github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/people/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sender is a distinct From header found in stored mail.
type Sender struct {
	EmailID     string
	FromAddress string
}

// PeopleRepository stores the mirrored address book.
type PeopleRepository interface {
	// InsertContacts stores new people and addresses; rows seen before
	// are left as they are.
	InsertContacts(ctx context.Context, accountID string, contacts []domain.Contact) error
	// Search matches people by name or by any of their addresses.
	Search(ctx context.Context, accountID, query string, limit int) ([]domain.Contact, error)
	// MatchSenders matches distinct senders of stored mail.
	MatchSenders(ctx context.Context, accountID, query string, limit int) ([]Sender, error)
	Count(ctx context.Context, accountID string) (int64, error)
	DeleteByAccount(ctx context.Context, accountID string) error
}

type peopleRepository struct {
	db *gorm.DB
}

// NewPeopleRepository creates a new instance of peopleRepository
func NewPeopleRepository(db *gorm.DB) PeopleRepository {
	return &peopleRepository{db: db}
}

func (r *peopleRepository) InsertContacts(ctx context.Context, accountID string, contacts []domain.Contact) error {
	now := time.Now()
	seenPeople := make(map[string]struct{}, len(contacts))
	seenAddresses := make(map[string]struct{}, len(contacts))
	var (
		people    []domain.Person
		addresses []domain.EmailAddress
	)
	for _, c := range contacts {
		if c.ID == "" {
			continue
		}
		if _, dup := seenPeople[c.ID]; dup {
			continue
		}
		seenPeople[c.ID] = struct{}{}
		people = append(people, domain.Person{
			AccountID:    accountID,
			ResourceName: c.ID,
			Name:         c.Name,
			PhotoURL:     c.PhotoURL,
			CreatedAt:    now,
		})
		for _, addr := range c.EmailAddresses {
			addr = strings.ToLower(strings.TrimSpace(addr))
			if addr == "" {
				continue
			}
			if _, dup := seenAddresses[addr]; dup {
				continue
			}
			seenAddresses[addr] = struct{}{}
			addresses = append(addresses, domain.EmailAddress{
				ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
				AccountID: accountID,
				PersonID:  c.ID,
				Email:     addr,
			})
		}
	}
	if len(people) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&people).Error; err != nil {
			return err
		}
		if len(addresses) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&addresses).Error
	})
}

const defaultLimit = 5

func likePattern(query string) string {
	return "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
}

func (r *peopleRepository) Search(ctx context.Context, accountID, query string, limit int) ([]domain.Contact, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	pattern := likePattern(query)
	db := r.db.WithContext(ctx)

	byAddress := r.db.Model(&domain.EmailAddress{}).
		Select("person_id").
		Where("account_id = ? AND email LIKE ?", accountID, pattern)

	var people []domain.Person
	err := db.Where("account_id = ?", accountID).
		Where(r.db.Where("LOWER(name) LIKE ?", pattern).Or("resource_name IN (?)", byAddress)).
		Order("name ASC").
		Limit(limit).
		Find(&people).Error
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return []domain.Contact{}, nil
	}

	ids := make([]string, len(people))
	for i, p := range people {
		ids[i] = p.ResourceName
	}
	var addresses []domain.EmailAddress
	if err := db.Where("account_id = ? AND person_id IN ?", accountID, ids).Order("email ASC").Find(&addresses).Error; err != nil {
		return nil, err
	}
	byPerson := make(map[string][]string, len(people))
	for _, a := range addresses {
		byPerson[a.PersonID] = append(byPerson[a.PersonID], a.Email)
	}

	contacts := make([]domain.Contact, len(people))
	for i, p := range people {
		emails := byPerson[p.ResourceName]
		if emails == nil {
			emails = []string{}
		}
		contacts[i] = domain.Contact{
			ID:             p.ResourceName,
			Name:           p.Name,
			PhotoURL:       p.PhotoURL,
			EmailAddresses: emails,
		}
	}
	return contacts, nil
}

func (r *peopleRepository) MatchSenders(ctx context.Context, accountID, query string, limit int) ([]Sender, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var senders []Sender
	err := r.db.WithContext(ctx).Model(&emaildomain.Email{}).
		Select("MIN(id) AS email_id, from_address").
		Where("account_id = ? AND LOWER(from_address) LIKE ?", accountID, likePattern(query)).
		Group("from_address").
		Order("from_address ASC").
		Limit(limit).
		Scan(&senders).Error
	return senders, err
}

func (r *peopleRepository) Count(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Person{}).Where("account_id = ?", accountID).Count(&n).Error
	return n, err
}

func (r *peopleRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&domain.EmailAddress{}).Error; err != nil {
			return err
		}
		return tx.Where("account_id = ?", accountID).Delete(&domain.Person{}).Error
	})
}
