package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("send: %w", PolicyViolation("files are disabled in room %s", "r1"))

	require.ErrorIs(t, err, ErrPolicyViolation)
	require.NotErrorIs(t, err, ErrAccessDenied)
	require.Equal(t, "send: files are disabled in room r1", err.Error())

	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "files are disabled in room r1", appErr.Message)
}

func TestCode(t *testing.T) {
	require.Equal(t, "access_denied", Code(AccessDenied("no")))
	require.Equal(t, "not_found", Code(NotFound("no")))
	require.Equal(t, "validation_error", Code(Validation("no")))
	require.Equal(t, "policy_violation", Code(PolicyViolation("no")))
	require.Equal(t, "internal", Code(errors.New("boom")))
}
