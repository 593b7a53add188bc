package service

import (
	"testing"

	"furniture-store/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeGrants(t *testing.T) {
	authz, err := NewAuthorizationService()
	require.NoError(t, err)

	admin := &model.User{ID: "a", Role: model.RoleAdmin, IsActive: true}
	employee := &model.User{ID: "e", Role: model.RoleEmployee, IsActive: true}
	customer := &model.User{ID: "c", Role: model.RoleCustomer, IsActive: true}

	tests := []struct {
		name     string
		actor    *model.User
		resource Resource
		action   Action
		owner    string
		want     error
	}{
		{"customer creates own order", customer, ResourceOrders, ActionCreate, "c", nil},
		{"customer creates order for others", customer, ResourceOrders, ActionCreate, "x", ErrUnauthorized},
		{"customer reads own order", customer, ResourceOrders, ActionRead, "c", nil},
		{"customer reads other order", customer, ResourceOrders, ActionRead, "x", ErrUnauthorized},
		{"customer cancels own order", customer, ResourceOrders, ActionCancel, "c", nil},
		{"customer lists orders", customer, ResourceOrders, ActionList, "", ErrUnauthorized},
		{"customer updates status", customer, ResourceOrders, ActionUpdateStatus, "c", ErrUnauthorized},
		{"customer generates invoice", customer, ResourceInvoices, ActionGenerate, "c", ErrUnauthorized},
		{"customer reads own invoice", customer, ResourceInvoices, ActionRead, "c", nil},
		{"customer writes products", customer, ResourceProducts, ActionWrite, "", ErrUnauthorized},
		{"customer uses own cart", customer, ResourceCarts, ActionUse, "c", nil},
		{"customer uses other cart", customer, ResourceCarts, ActionUse, "x", ErrUnauthorized},
		{"customer manages users", customer, ResourceUsers, ActionManage, "", ErrUnauthorized},

		{"employee reads any order", employee, ResourceOrders, ActionRead, "x", nil},
		{"employee updates status", employee, ResourceOrders, ActionUpdateStatus, "", nil},
		{"employee cancels any order", employee, ResourceOrders, ActionCancel, "x", nil},
		{"employee generates invoice", employee, ResourceInvoices, ActionGenerate, "", nil},
		{"employee downloads invoice", employee, ResourceInvoices, ActionDownload, "", nil},
		{"employee reads other invoice", employee, ResourceInvoices, ActionRead, "x", ErrUnauthorized},
		{"employee lists invoices", employee, ResourceInvoices, ActionList, "", ErrUnauthorized},
		{"employee writes products", employee, ResourceProducts, ActionWrite, "", nil},
		{"employee uses own cart", employee, ResourceCarts, ActionUse, "e", nil},
		{"employee manages users", employee, ResourceUsers, ActionManage, "", ErrUnauthorized},

		{"admin inherits employee grants", admin, ResourceOrders, ActionUpdateStatus, "", nil},
		{"admin reads any invoice", admin, ResourceInvoices, ActionRead, "x", nil},
		{"admin lists invoices", admin, ResourceInvoices, ActionList, "", nil},
		{"admin manages users", admin, ResourceUsers, ActionManage, "", nil},

		{"anonymous", nil, ResourceOrders, ActionRead, "", ErrUnauthenticated},
		{"inactive admin", &model.User{ID: "z", Role: model.RoleAdmin}, ResourceUsers, ActionManage, "", ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(tt.actor, tt.resource, tt.action, tt.owner)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetRolePermissionsIncludesInherited(t *testing.T) {
	authz, err := NewAuthorizationService()
	require.NoError(t, err)

	permissions, err := authz.GetRolePermissions(model.RoleAdmin)
	require.NoError(t, err)

	granted := make([]string, 0, len(permissions))
	for _, p := range permissions {
		require.Len(t, p, 3)
		granted = append(granted, p[1]+" "+p[2])
	}
	assert.Contains(t, granted, "users manage:any")
	assert.Contains(t, granted, "products write:any")
	assert.Contains(t, granted, "carts use:own")
}
