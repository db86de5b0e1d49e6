package gmail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/people/v1"

	peopledomain "github.com/usemox/mox/internal/people/domain"
)

const (
	contactsPageSize = 100
	personFields     = "emailAddresses,names,photos"
)

var _ peopledomain.ContactSource = (*Client)(nil)

// SetPeopleService enables ListContacts.
func (c *Client) SetPeopleService(srv *people.Service) {
	c.contacts = srv
}

// ListContacts returns one page of the account's connections.
func (c *Client) ListContacts(ctx context.Context, pageToken string) (*peopledomain.ContactPage, error) {
	if c.contacts == nil {
		return nil, errors.New("contacts are not enabled for this client")
	}
	call := c.contacts.People.Connections.List("people/me").
		PageSize(contactsPageSize).
		PersonFields(personFields)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := withRetry(ctx, c, "people.connections.list", func() (*people.ListConnectionsResponse, error) {
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list contacts: %w", err)
	}

	page := &peopledomain.ContactPage{NextPageToken: resp.NextPageToken}
	for _, p := range resp.Connections {
		if contact, ok := contactFromPerson(p); ok {
			page.Contacts = append(page.Contacts, contact)
		}
	}
	return page, nil
}

func contactFromPerson(p *people.Person) (peopledomain.Contact, bool) {
	if p == nil || p.ResourceName == "" {
		return peopledomain.Contact{}, false
	}
	contact := peopledomain.Contact{ID: p.ResourceName, EmailAddresses: []string{}}
	if len(p.Names) > 0 && p.Names[0] != nil {
		contact.Name = p.Names[0].DisplayName
	}
	if len(p.Photos) > 0 && p.Photos[0] != nil {
		contact.PhotoURL = p.Photos[0].Url
	}
	for _, e := range p.EmailAddresses {
		if e == nil {
			continue
		}
		if v := strings.TrimSpace(e.Value); v != "" {
			contact.EmailAddresses = append(contact.EmailAddresses, v)
		}
	}
	return contact, true
}
