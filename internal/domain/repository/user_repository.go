package repository

import (
	"context"

	"swapmeet/internal/domain/entity"
)

// UserRepository is the user-directory collaborator. This service only ever
// reads from it, at conversation and message creation time.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// ItemRepository is the listing-catalog collaborator, read-only here.
type ItemRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Item, error)
}
