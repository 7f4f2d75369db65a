package atrerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		AccessDenied: "AccessDenied",
		Validation:   "Validation",
		Conflict:     "Conflict",
		NotFound:     "NotFound",
		Failed:       "Failed",
		External:     "External",
		Fatal:        "Fatal",
		Kind(99):     "Unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestConstructorsSetKindAndMessage(t *testing.T) {
	err := Validationf("invalid version %q", "")
	require.Error(t, err)
	assert.Equal(t, "Validation: invalid version \"\"", err.Error())
	assert.True(t, Is(err, Validation))
	assert.False(t, Is(err, NotFound))
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(External, "dial upstream", cause)

	assert.Equal(t, "External: dial upstream: connection refused", wrapped.Error())
	assert.Same(t, cause, errors.Unwrap(wrapped))
	assert.True(t, errors.Is(wrapped, cause))
}

func TestIsFalseForPlainErrors(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), NotFound))
	assert.False(t, Is(nil, NotFound))
}

func TestIsMatchesWrappedErrorChains(t *testing.T) {
	inner := NotFoundf("release %s-%s not found", "foo", "1.0")
	outer := fmt.Errorf("lookup failed: %w", inner)
	assert.True(t, Is(outer, NotFound))
	assert.False(t, Is(outer, Conflict))
}
