package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneKeepsIdentity(t *testing.T) {
	cloned := Clone(ErrNotFound, "report not found")
	require.Equal(t, "report not found", cloned.Message)
	require.Equal(t, http.StatusNotFound, cloned.Status)
	require.True(t, errors.Is(cloned, ErrNotFound))
	require.False(t, errors.Is(cloned, ErrForbidden))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	require.Equal(t, ErrInternal.Code, appErr.Code)
	require.Equal(t, "boom", Detail(appErr))

	wrapped := fmt.Errorf("outer: %w", ErrRenderFailure)
	require.Equal(t, ErrRenderFailure.Code, FromError(wrapped).Code)
}

func TestDetailPrefersCause(t *testing.T) {
	err := Wrap(fmt.Errorf("font missing"), ErrRenderFailure.Code, ErrRenderFailure.Status, ErrRenderFailure.Message)
	require.Equal(t, "font missing", Detail(err))
	require.Equal(t, "unauthorized", Detail(ErrForbidden))
	require.Empty(t, Detail(nil))
}
