package handlers_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func extractResetToken(t *testing.T, body string) string {
	t.Helper()

	idx := strings.Index(body, "http")
	require.GreaterOrEqual(t, idx, 0, "reset link missing from %q", body)
	u, err := url.Parse(strings.Fields(body[idx:])[0])
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}
