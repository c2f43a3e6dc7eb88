package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	err := fmt.Errorf("create request: %w", Clone(ErrInsufficientTokens, "need 10 tokens"))

	appErr := FromError(err)
	assert.Equal(t, ErrInsufficientTokens.Code, appErr.Code)
	assert.Equal(t, http.StatusPaymentRequired, appErr.Status)
	assert.Equal(t, "need 10 tokens", appErr.Message)
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
}

func TestIsComparesCodes(t *testing.T) {
	assert.True(t, Is(Clone(ErrDuplicateRequest, ""), ErrDuplicateRequest))
	assert.False(t, Is(ErrConflict, ErrDuplicateRequest))
	assert.False(t, Is(nil, ErrConflict))
}
