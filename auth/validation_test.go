package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acadnet/acadnet/auth"
)

func TestValidateEmail(t *testing.T) {
	require.NoError(t, auth.ValidateEmail("john@example.com"))
	require.NoError(t, auth.ValidateEmail("  john@example.com  "))

	require.Error(t, auth.ValidateEmail(""))
	require.Error(t, auth.ValidateEmail("john"))
	require.Error(t, auth.ValidateEmail("john@example"))
	require.Error(t, auth.ValidateEmail("john doe@example.com"))
}

func TestValidateUsername(t *testing.T) {
	require.NoError(t, auth.ValidateUsername("bob"))
	require.NoError(t, auth.ValidateUsername("john_doe42"))

	require.Error(t, auth.ValidateUsername(""))
	require.Error(t, auth.ValidateUsername("ab"))
	require.Error(t, auth.ValidateUsername("john doe"))
}

func TestValidateSignup(t *testing.T) {
	require.NoError(t, auth.ValidateSignup("john@example.com", "johndoe", "Password123"))

	require.Error(t, auth.ValidateSignup("bad", "johndoe", "Password123"))
	require.Error(t, auth.ValidateSignup("john@example.com", "jd", "Password123"))
	require.Error(t, auth.ValidateSignup("john@example.com", "johndoe", "short1A"))
	require.Error(t, auth.ValidateSignup("john@example.com", "johndoe", "nouppercase123"))
	require.Error(t, auth.ValidateSignup("john@example.com", "johndoe", "NOLOWERCASE123"))
	require.Error(t, auth.ValidateSignup("john@example.com", "johndoe", "NoNumbersHere"))
}
