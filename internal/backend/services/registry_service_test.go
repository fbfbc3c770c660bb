package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRemove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	view := h.connectOctocat(t)
	registry := h.svc.Registry()

	var notFound *NotFoundError
	assert.ErrorAs(t, registry.Remove(ctx, h.other, view.ID), &notFound)

	require.NoError(t, registry.Remove(ctx, h.userID, view.ID))

	_, err := registry.FindOwned(ctx, h.userID, view.ID)
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, view.ID, notFound.ID)
	assert.Equal(t, "connection "+view.ID+" not found", notFound.Error())

	assert.ErrorAs(t, registry.Remove(ctx, h.userID, view.ID), &notFound)
}

func TestRegistryListByUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	view := h.connectOctocat(t)
	registry := h.svc.Registry()

	mine, err := registry.ListByUser(ctx, h.userID, false)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, view.ID, mine[0].ID)
	assert.Equal(t, h.userID, mine[0].UserID)

	theirs, err := registry.ListByUser(ctx, h.other, false)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	stats, err := registry.Statistics(ctx, h.other)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestRequireUserWithoutDirectory(t *testing.T) {
	ctx := context.Background()

	var forbidden *ForbiddenError
	assert.ErrorAs(t, requireUser(ctx, nil, ""), &forbidden)
	assert.NoError(t, requireUser(ctx, nil, "anyone"))
}
