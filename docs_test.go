package main

import (
	"os"
	"reflect"
	"testing"

	"github.com/parleyhq/parley/modules/calls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The Zoom setup doc tells admins which env keys, redirect path, and scopes
// to configure. Keep it in sync with the code it documents.
func TestZoomDocMatchesCode(t *testing.T) {
	doc, err := os.ReadFile("docs/zoom.md")
	require.NoError(t, err)

	typ := reflect.TypeOf(Config{})
	for _, name := range []string{"VideoZoomClientID", "VideoZoomClientSecret"} {
		field, ok := typ.FieldByName(name)
		require.True(t, ok)
		key := "PARLEY_" + field.Tag.Get("env")
		assert.Contains(t, string(doc), key, "doc must name the %s env key", name)
	}

	assert.Contains(t, string(doc), calls.CallbackPath)
	for _, scope := range calls.RequiredScopes {
		assert.Contains(t, string(doc), scope)
	}
}
