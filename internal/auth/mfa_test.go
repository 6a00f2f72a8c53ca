package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaline-edu/enrollgate/internal/auth"
)

func TestMFAService_ValidateCode_AcceptsCurrentCode(t *testing.T) {
	svc := auth.NewMFAService("enrollgate")

	key, _, err := svc.GenerateSecret("student@example.com")
	require.NoError(t, err)

	code, err := svc.GenerateCode(key.Secret())
	require.NoError(t, err)

	assert.True(t, svc.ValidateCode(code, key.Secret()))
}

func TestMFAService_ValidateCode_RejectsWrongCode(t *testing.T) {
	svc := auth.NewMFAService("enrollgate")

	key, _, err := svc.GenerateSecret("student@example.com")
	require.NoError(t, err)

	assert.False(t, svc.ValidateCode("000000", key.Secret()))
}

func TestMFAService_ValidateCode_RejectsCodeFromDifferentSecret(t *testing.T) {
	svc := auth.NewMFAService("enrollgate")

	key1, _, err := svc.GenerateSecret("student-one@example.com")
	require.NoError(t, err)
	key2, _, err := svc.GenerateSecret("student-two@example.com")
	require.NoError(t, err)

	code, err := svc.GenerateCode(key1.Secret())
	require.NoError(t, err)

	assert.False(t, svc.ValidateCode(code, key2.Secret()))
}
