package safety

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesCode(t *testing.T) {
	err := InvalidTransition("aprobar", GuardMissingSignatures, "missing %s", "aprobador")

	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrAccessDenied))
	assert.True(t, errors.Is(err, &Error{Code: CodeInvalidTransition, Guard: GuardMissingSignatures}))
	assert.False(t, errors.Is(err, &Error{Code: CodeInvalidTransition, Guard: GuardReopenLimit}))
}

func TestError_WrappedStillClassified(t *testing.T) {
	err := fmt.Errorf("handler: %w", StaleWrite("save document", 1, 2))

	assert.Equal(t, CodeStaleWrite, CodeOf(err))
	assert.True(t, errors.Is(err, ErrStaleWrite))
	assert.Equal(t, http.StatusPreconditionFailed, HTTPStatus(err))
}

func TestRepositoryError(t *testing.T) {
	assert.NoError(t, RepositoryError("op", nil))

	cause := errors.New("connection reset")
	err := RepositoryError("load document", cause)
	assert.Equal(t, CodeRepository, CodeOf(err))
	assert.ErrorIs(t, err, cause)

	nf := NotFound("load document", "emo x")
	assert.Same(t, nf, RepositoryError("list documents", nf))
}

func TestAccessDenied_HasNoDetail(t *testing.T) {
	err := AccessDenied("read emo")
	assert.Equal(t, "read emo: access_denied: caller is not permitted to perform this operation", err.Error())
}

func TestGuardOf(t *testing.T) {
	assert.Equal(t, GuardReopenLimit, GuardOf(InvalidTransition("reabrir", GuardReopenLimit, "limit reached")))
	assert.Equal(t, "", GuardOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("op", nil, "bad"), http.StatusUnprocessableEntity},
		{AccessDenied("op"), http.StatusForbidden},
		{InvalidTransition("op", GuardUnknownTransition, "x"), http.StatusConflict},
		{StaleWrite("op", 1, 2), http.StatusPreconditionFailed},
		{NotFound("op", "x"), http.StatusNotFound},
		{RepositoryError("op", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
