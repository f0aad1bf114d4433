package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/strixun/edgecore/internal/apperr"
	"github.com/strixun/edgecore/internal/entity"
)

const customerService = "customer"
const customerEntity = "profile"

// CustomerStore upserts and looks up Customer entities via EntityStore,
// maintaining the email-to-customerId index transactionally from the
// caller's perspective (entity write then index write, both visible to an
// immediate re-read in the same request).
type CustomerStore struct {
	entities *entity.Store
}

// NewCustomerStore wraps an entity.Store for Customer access.
func NewCustomerStore(store *entity.Store) *CustomerStore {
	return &CustomerStore{entities: store}
}

// GetByID loads a Customer by customerId.
func (s *CustomerStore) GetByID(ctx context.Context, customerID string) (*Customer, bool, error) {
	c, ok, err := entity.GetEntity[Customer](ctx, s.entities, customerService, customerEntity, customerID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &c, true, nil
}

// GetByEmailHash resolves a customerId via the by-email index, then loads
// the Customer.
func (s *CustomerStore) GetByEmailHash(ctx context.Context, hash string) (*Customer, bool, error) {
	customerID, ok, err := s.entities.IndexGetSingle(ctx, customerService, "by-email", hash)
	if err != nil || !ok {
		return nil, ok, err
	}
	return s.GetByID(ctx, customerID)
}

// GetOrCreate loads the Customer for hash, creating one with a freshly
// generated display name if none exists.
func (s *CustomerStore) GetOrCreate(ctx context.Context, normalizedEmail, hash string) (*Customer, error) {
	existing, ok, err := s.GetByEmailHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("looking up customer by email: %w", err)
	}
	if ok {
		return existing, nil
	}

	displayName, err := s.uniqueDisplayName(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	customerID := "cust_" + hash[:20]
	c := &Customer{
		CustomerID:  customerID,
		Email:       normalizedEmail,
		EmailHash:   hash,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
		Preferences: CustomerPrefs{EmailVisibility: EmailVisibilityPrivate},
	}

	if err := entity.PutEntity(ctx, s.entities, customerService, customerEntity, c.CustomerID, c); err != nil {
		return nil, fmt.Errorf("writing new customer: %w", err)
	}
	if err := s.entities.IndexSetSingle(ctx, customerService, "by-email", hash, c.CustomerID); err != nil {
		return nil, fmt.Errorf("indexing new customer by email: %w", err)
	}
	if err := s.entities.IndexSetSingle(ctx, customerService, "by-displayname", displayName, c.CustomerID); err != nil {
		return nil, fmt.Errorf("indexing new customer by display name: %w", err)
	}

	return c, nil
}

func (s *CustomerStore) uniqueDisplayName(ctx context.Context) (string, error) {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		candidate, err := GenerateDisplayName()
		if err != nil {
			return "", err
		}
		_, taken, err := s.entities.IndexGetSingle(ctx, customerService, "by-displayname", candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", apperr.New(apperr.KindConflict, "could not generate a unique display name")
}

// UpdateDisplayName changes a customer's display name, recording the prior
// value in history and maintaining the by-displayname uniqueness index.
func (s *CustomerStore) UpdateDisplayName(ctx context.Context, customerID, newName string) error {
	c, ok, err := s.GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindNotFound, "customer not found")
	}

	_, taken, err := s.entities.IndexGetSingle(ctx, customerService, "by-displayname", newName)
	if err != nil {
		return err
	}
	if taken {
		return apperr.New(apperr.KindConflict, "display name already taken")
	}

	oldName := c.DisplayName
	c.DisplayNameHistory = append(c.DisplayNameHistory, oldName)
	c.DisplayName = newName

	if err := entity.PutEntity(ctx, s.entities, customerService, customerEntity, c.CustomerID, c); err != nil {
		return fmt.Errorf("writing renamed customer: %w", err)
	}
	if err := s.entities.IndexSetSingle(ctx, customerService, "by-displayname", newName, c.CustomerID); err != nil {
		return fmt.Errorf("indexing new display name: %w", err)
	}
	if oldName != "" {
		_ = s.entities.IndexDeleteSingle(ctx, customerService, "by-displayname", oldName)
	}
	return nil
}
