package service

import (
	"context"
	"testing"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Feature: storefront, Property: reading a cart twice yields the same items
func TestProperty_GetOrCreateCartIsStable(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("two reads return identical item sets", prop.ForAll(
		func(quantities []int) bool {
			f := newFixture()
			ctx := context.Background()
			userID := uuid.New()

			for _, q := range quantities {
				p := f.product(t, "item", "1.00", 100)
				if _, err := f.carts.AddItem(ctx, userID, p.ID, q); err != nil {
					return false
				}
			}

			first, err := f.carts.GetOrCreateCart(ctx, userID)
			if err != nil {
				return false
			}
			second, err := f.carts.GetOrCreateCart(ctx, userID)
			if err != nil {
				return false
			}

			return first.ID == second.ID && assert.ObjectsAreEqual(first.Items, second.Items)
		},
		gen.SliceOfN(5, gen.IntRange(1, 100)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: storefront, Property: adding more than the stock fails and leaves the cart unchanged
func TestProperty_AddItemBeyondStockIsRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("q > stock fails with insufficient stock", prop.ForAll(
		func(stock int, extra int) bool {
			f := newFixture()
			ctx := context.Background()
			userID := uuid.New()
			p := f.product(t, "scarce", "9.99", stock)

			before, err := f.carts.GetOrCreateCart(ctx, userID)
			if err != nil {
				return false
			}

			_, err = f.carts.AddItem(ctx, userID, p.ID, stock+extra)
			if !assert.ErrorIs(t, err, domain.ErrInsufficientStock) {
				return false
			}

			after, err := f.carts.GetOrCreateCart(ctx, userID)
			return err == nil && assert.ObjectsAreEqual(before.Items, after.Items)
		},
		gen.IntRange(0, 50),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestAddItem_IncrementsExistingLine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	a := f.product(t, "A", "10.00", 10)

	_, err := f.carts.AddItem(ctx, userID, a.ID, 3)
	require.NoError(t, err)
	cart, err := f.carts.AddItem(ctx, userID, a.ID, 2)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, a.ID, cart.Items[0].ProductID)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, "A", cart.Items[0].Name)
	assert.Equal(t, 10, cart.Items[0].Stock)
}

func TestAddItem_Errors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	a := f.product(t, "A", "10.00", 10)

	_, err := f.carts.AddItem(ctx, userID, uuid.New(), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.carts.AddItem(ctx, userID, a.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.carts.AddItem(ctx, userID, a.ID, domain.MaxQuantity+1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUpdateItemQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	a := f.product(t, "A", "10.00", 10)
	b := f.product(t, "B", "5.00", 10)

	_, err := f.carts.UpdateItemQuantity(ctx, userID, a.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no cart yet")

	_, err = f.carts.AddItem(ctx, userID, a.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, userID, b.ID, 1)
	require.NoError(t, err)

	cart, err := f.carts.UpdateItemQuantity(ctx, userID, a.ID, 7)
	require.NoError(t, err)
	line, ok := cart.Item(a.ID)
	require.True(t, ok)
	assert.Equal(t, 7, line.Quantity)

	// no stock re-check on overwrite
	cart, err = f.carts.UpdateItemQuantity(ctx, userID, b.ID, 50)
	require.NoError(t, err)
	line, _ = cart.Item(b.ID)
	assert.Equal(t, 50, line.Quantity)

	cart, err = f.carts.UpdateItemQuantity(ctx, userID, a.ID, 0)
	require.NoError(t, err)
	_, ok = cart.Item(a.ID)
	assert.False(t, ok)
	assert.Len(t, cart.Items, 1)

	_, err = f.carts.UpdateItemQuantity(ctx, userID, b.ID, domain.MaxQuantity+1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.carts.UpdateItemQuantity(ctx, userID, a.ID, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveItemAndClear(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	a := f.product(t, "A", "10.00", 10)
	b := f.product(t, "B", "5.00", 10)

	_, err := f.carts.ClearCart(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.carts.AddItem(ctx, userID, a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, userID, b.ID, 1)
	require.NoError(t, err)

	cart, err := f.carts.RemoveItem(ctx, userID, a.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	_, err = f.carts.RemoveItem(ctx, userID, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cart, err = f.carts.ClearCart(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	again, err := f.carts.GetOrCreateCart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
}
