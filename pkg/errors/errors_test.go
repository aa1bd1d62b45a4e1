package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := Wrap(cause, CodeTransportError, "backend unreachable")

	assert.Equal(t, "[4002] backend unreachable: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
}

func TestCodeOf_ThroughWrapping(t *testing.T) {
	base := New(CodeMissingCredential, "Missing API key for provider 'openai'. Set OPENAI_API_KEY in the environment.")
	wrapped := fmt.Errorf("resolve: %w", base)

	assert.Equal(t, CodeMissingCredential, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeMissingCredential))
	assert.False(t, Is(nil, CodeMissingCredential))
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("plain")))

	appErr := AsAppError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, "MissingCredential", appErr.Code.Name())
}

func TestErrorCode_Classification(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		invocation bool
		status     int
	}{
		{CodeTimeout, true, http.StatusGatewayTimeout},
		{CodeTransportError, true, http.StatusBadGateway},
		{CodeBackendRejected, true, http.StatusBadGateway},
		{CodeUnsupportedTarget, false, http.StatusBadRequest},
		{CodeCapabilityUnsupported, false, http.StatusBadRequest},
		{CodeDatabaseError, false, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.Name(), func(t *testing.T) {
			assert.Equal(t, tt.invocation, tt.code.IsInvocation())
			assert.Equal(t, tt.status, codeToHTTPStatus(tt.code))
		})
	}
}

func TestAsAppError_Unknown(t *testing.T) {
	appErr := AsAppError(stderrors.New("boom"))
	assert.Equal(t, CodeUnknown, appErr.Code)
	assert.Equal(t, "Unknown", appErr.Code.Name())
}
