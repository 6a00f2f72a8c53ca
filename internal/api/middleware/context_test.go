package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaline-edu/enrollgate/internal/api/middleware"
)

func TestGetUserID_MissingReturnsError(t *testing.T) {
	_, err := middleware.GetUserID(context.Background())
	assert.Error(t, err)
}

func TestGetUserID_ReturnsStoredValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.UserIDKey, int64(7))
	id, err := middleware.GetUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestMustGetUserID_PanicsWhenMissing(t *testing.T) {
	assert.Panics(t, func() {
		middleware.MustGetUserID(context.Background())
	})
}

func TestGetRole_ReturnsStoredValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RoleKey, "admin")
	role, err := middleware.GetRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
}
