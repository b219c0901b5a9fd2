package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseledger/internal/roomstore"
)

func TestCreateResourceTypePersistsAndDefaults(t *testing.T) {
	ctx := context.Background()
	store := roomstore.NewMemory()
	c := New(store)

	created, err := c.CreateResourceType(ctx, "!org:x", ResourceTypeInput{
		Name:     "Shelter Bed",
		Category: CategoryHousing,
		Unit:     "bed",
		Fungible: true,
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
	require.NotNil(t, created.Permissions, "missing permissions block gets the default")
	assert.Equal(t, DefaultPermissions(), created.Permissions)

	fetched, err := c.GetResourceType(ctx, "!org:x", created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, created, fetched)
}

func TestCreateResourceTypeKeepsSuppliedPermissions(t *testing.T) {
	ctx := context.Background()
	c := New(roomstore.NewMemory())

	perms := &Permissions{Viewers: []Grant{{Type: GrantRole, ID: "case_manager"}}}
	created, err := c.CreateResourceType(ctx, "!org:x", ResourceTypeInput{
		Name:        "Emergency Fund",
		Category:    CategoryFunds,
		Unit:        "usd",
		Fungible:    true,
		Permissions: perms,
	})
	require.NoError(t, err)
	assert.Equal(t, perms, created.Permissions)
}

func TestCreateResourceTypeRejectsUnknownCategory(t *testing.T) {
	ctx := context.Background()
	store := roomstore.NewMemory()
	c := New(store)

	_, err := c.CreateResourceType(ctx, "!org:x", ResourceTypeInput{
		Name:     "Mystery",
		Category: Category("vibes"),
		Unit:     "unit",
	})
	require.Error(t, err)
	assert.True(t, IsInvalidCategory(err))
}

func TestGetResourceTypeAbsent(t *testing.T) {
	c := New(roomstore.NewMemory())

	rt, err := c.GetResourceType(context.Background(), "!org:x", "missing")
	require.NoError(t, err)
	assert.Nil(t, rt)
}
