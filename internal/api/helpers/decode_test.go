package helpers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaline-edu/enrollgate/internal/api/helpers"
)

type decodeTarget struct {
	Name string `json:"name"`
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":"b"}`))

	var target decodeTarget
	err := helpers.DecodeJSON(req, &target)
	assert.Error(t, err)
}

func TestDecodeJSON_AcceptsWellFormedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))

	var target decodeTarget
	err := helpers.DecodeJSON(req, &target)
	require.NoError(t, err)
	assert.Equal(t, "a", target.Name)
}
