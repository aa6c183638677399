package testutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v and verifies success
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// ErrorResponse matches the API error body.
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// AssertErrorResponse verifies the status code and the error code of a JSON
// error body, and returns the decoded body.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) *ErrorResponse {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	var body ErrorResponse
	AssertJSONResponse(t, resp, &body)
	assert.Equal(t, expectedCode, body.Error.Code, "error code mismatch: %s", body.Error.Message)
	return &body
}

// AssertErrorCode verifies err carries the application error want.
func AssertErrorCode(t *testing.T, err error, want *domain.Error) {
	t.Helper()

	require.Error(t, err)
	assert.True(t, errors.Is(err, want), "expected %s, got %v", want.Code, err)
	assert.Equal(t, want.Code, domain.CodeOf(err))
}
