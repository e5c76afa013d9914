/**
 * @description
 * This file defines the core domain models for the ledger-service.
 * Clients, accounts and transactions are validated at construction so that the
 * application layer only ever handles well-formed values.
 *
 * @notes
 * - Identifiers are assigned by the store (BIGSERIAL); zero means "not yet persisted".
 * - Money is carried as shopspring/decimal values, never as floating point.
 */

package domain

import "strings"

// Client is the owner of one or more accounts.
type Client struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewClient validates and builds a Client. Updates go through the same constructor
// since a client is always replaced as a whole.
func NewClient(id int64, name, email string) (Client, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return Client{}, NewValidationError("name", "must not be empty")
	}
	if !strings.Contains(email, "@") {
		return Client{}, NewValidationError("email", "must contain @")
	}
	return Client{ID: id, Name: name, Email: email}, nil
}
