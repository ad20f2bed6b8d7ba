package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalPhone(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"+56912345678", "+56912345678"},
		{"56912345678", "+56912345678"},
		{"912345678", "+56912345678"},
		{"9 1234 5678", "+56912345678"},
		{"+56 9 1234 5678", "+56912345678"},
	} {
		require.Equal(t, tc.want, CanonicalPhone(tc.in), "input %q", tc.in)
	}
}

func TestPhoneVariants_CoverWhatsAppAndWebFormats(t *testing.T) {
	variants := PhoneVariants("56912345678")
	require.Contains(t, variants, "56912345678")
	require.Contains(t, variants, "+56912345678")

	// A locally formatted signup must still be found.
	variants = PhoneVariants("9-1234-5678")
	require.Contains(t, variants, "+56912345678")

	// No duplicates, no empty entries.
	seen := map[string]bool{}
	for _, v := range variants {
		require.NotEmpty(t, v)
		require.False(t, seen[v], "duplicate variant %q", v)
		seen[v] = true
	}
}

func TestDigitsOnly(t *testing.T) {
	require.Equal(t, "56912345678", DigitsOnly("+56 9 1234-5678"))
	require.Equal(t, "", DigitsOnly("sin números"))
}

func TestValidatePhoneNumber(t *testing.T) {
	require.NoError(t, ValidatePhoneNumber("+56912345678"))
	require.NoError(t, ValidatePhoneNumber("9 1234 5678"))
	require.NoError(t, ValidatePhoneNumber("9-1234-5678"))
	require.NoError(t, ValidatePhoneNumber("56912345678"))
	require.Error(t, ValidatePhoneNumber("123"))
	require.Error(t, ValidatePhoneNumber(""))
	require.Error(t, ValidatePhoneNumber("sin números"))
}
