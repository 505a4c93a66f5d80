package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biblioteca/internal/catalog/models"
	"biblioteca/internal/catalog/store"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/platform/audit/publisher"
	auditmemory "biblioteca/pkg/platform/audit/store/memory"
)

func TestService_CreateAndList(t *testing.T) {
	ctx := context.Background()
	auditStore := auditmemory.NewInMemoryStore()
	svc := New(store.NewInMemory(), WithAuditPublisher(publisher.NewPublisher(auditStore)))
	librarian := id.NewAccountID()

	item, err := svc.CreateItem(ctx, librarian, &models.CreateItemRequest{
		Title: "Rayuela", Author: "Julio Cortázar", Genre: "Novela", Copies: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, item.AvailableCopies)

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rayuela", got.Title)

	items, err := svc.ListItems(ctx, true)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	events, err := auditStore.ListByAccount(ctx, librarian)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventCatalogItemAdded), events[0].Action)
}

func TestService_CreateItemValidation(t *testing.T) {
	svc := New(store.NewInMemory())
	_, err := svc.CreateItem(context.Background(), id.NewAccountID(), &models.CreateItemRequest{
		Title: "Rayuela", Genre: "Novela", Copies: 0,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestService_GetItemNotFound(t *testing.T) {
	svc := New(store.NewInMemory())
	_, err := svc.GetItem(context.Background(), id.NewItemID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
