package service

import (
	"context"
	"testing"

	"furniture-store/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productRequest(name, price string, stock int, category string) *model.ProductRequest {
	return &model.ProductRequest{
		Name:        name,
		Description: name + " description",
		Price:       money(price),
		Stock:       stock,
		Category:    category,
	}
}

func TestProductWritesRequireElevatedRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.products.CreateProduct(ctx, f.customer, productRequest("Desk", "120.00", 3, "Office"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.products.CreateProduct(ctx, nil, productRequest("Desk", "120.00", 3, "Office"))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	product, err := f.products.CreateProduct(ctx, f.employee, productRequest("Desk", "120.004", 3, "Office"))
	require.NoError(t, err)
	assert.True(t, product.Price.Equal(money("120.00")))

	_, err = f.products.CreateProduct(ctx, f.employee, productRequest("Desk", "99.00", 1, "Office"))
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.products.UpdateProduct(ctx, f.customer, product.ID, productRequest("Desk", "1.00", 1, "Office"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	restocked, err := f.products.UpdateProduct(ctx, f.employee, product.ID, productRequest("Desk", "110.00", 30, "Office"))
	require.NoError(t, err)
	assert.Equal(t, 30, restocked.Stock)
	assert.True(t, restocked.Price.Equal(money("110.00")))
}

func TestProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]*model.ProductRequest{
		"negative price": productRequest("Desk", "-1.00", 1, "Office"),
		"negative stock": productRequest("Desk", "1.00", -1, "Office"),
		"blank name":     productRequest(" ", "1.00", 1, "Office"),
		"blank category": productRequest("Desk", "1.00", 1, ""),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.products.CreateProduct(ctx, f.admin, req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createProduct(t, "Armchair", "150.00", 2)
	f.createProduct(t, "Bed Frame", "400.00", 0)
	_, err := f.products.CreateProduct(ctx, f.admin, productRequest("Coffee Table", "80.00", 7, "Living Room"))
	require.NoError(t, err)
	_, err = f.products.CreateProduct(ctx, f.admin, productRequest("Desk Lamp", "25.00", 9, "Office"))
	require.NoError(t, err)

	page, err := f.products.ListProducts(ctx, ProductFilters{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Products, 2)
	assert.Equal(t, "Armchair", page.Products[0].Name)

	inStock, err := f.products.ListProducts(ctx, ProductFilters{InStock: true})
	require.NoError(t, err)
	assert.Equal(t, 3, inStock.TotalItems)

	search, err := f.products.ListProducts(ctx, ProductFilters{Search: "TABLE"})
	require.NoError(t, err)
	require.Len(t, search.Products, 1)
	assert.Equal(t, "Coffee Table", search.Products[0].Name)

	office, err := f.products.ListProductsByCategory(ctx, "Office")
	require.NoError(t, err)
	require.Len(t, office, 1)
	assert.Equal(t, "Desk Lamp", office[0].Name)

	_, err = f.products.GetProduct(ctx, "missing-product")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ordered := f.createProduct(t, "Armchair", "150.00", 2)
	unused := f.createProduct(t, "Ottoman", "60.00", 2)
	f.placeOrder(t, f.customer, item(ordered.ID, 1))

	err := f.products.DeleteProduct(ctx, f.employee, ordered.ID)
	assert.ErrorIs(t, err, ErrConflict)

	err = f.products.DeleteProduct(ctx, f.customer, unused.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.products.DeleteProduct(ctx, f.employee, unused.ID))
	_, err = f.products.GetProduct(ctx, unused.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
