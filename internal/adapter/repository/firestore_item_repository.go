package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"swapmeet/internal/domain/entity"
	"swapmeet/internal/domain/repository"
	"swapmeet/pkg/errors"
)

type firestoreItemRepository struct {
	client *firestore.Client
}

func NewFirestoreItemRepository(client *firestore.Client) repository.ItemRepository {
	return &firestoreItemRepository{
		client: client,
	}
}

func (r *firestoreItemRepository) GetByID(ctx context.Context, id string) (*entity.Item, error) {
	doc, err := r.client.Collection("items").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.OperationFailed("Item not found", err)
		}
		return nil, mapStoreError("Failed to get item", err)
	}

	var item entity.Item
	if err := doc.DataTo(&item); err != nil {
		return nil, errors.OperationFailed("Failed to parse item data", err)
	}

	return &item, nil
}
