package phone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_StripsNonDigits(t *testing.T) {
	require.Equal(t, "12025550101", Normalize("+1 (202) 555-0101"))
	require.Equal(t, "2025550101", Normalize("202.555.0101"))
	require.Equal(t, "", Normalize("ext."))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"+1-202-555-0101", "2025550101", "  (44) 20 7946 0958 ", ""}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once))
	}
}

func TestNormalize_DigitsOnly(t *testing.T) {
	for _, in := range []string{"+1 (202) 555-0101", "abc123def456", "☎ 555"} {
		for _, r := range Normalize(in) {
			require.True(t, r >= '0' && r <= '9')
		}
	}
}

func TestMatch_CountryCodePrefix(t *testing.T) {
	require.True(t, Match("+1-202-555-0101", "2025550101"))
	require.True(t, Match("2025550101", "12025550101"))
	require.False(t, Match("2025550101", "2025550102"))
}

func TestMatch_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"+1-202-555-0101", "2025550101"},
		{"555", "2025550101"},
		{"2025550101", "2025550102"},
		{"", "2025550101"},
	}
	for _, p := range pairs {
		require.Equal(t, Match(p[0], p[1]), Match(p[1], p[0]))
	}
}

func TestMatch_EmptyNeverMatches(t *testing.T) {
	require.False(t, Match("", ""))
	require.False(t, Match("", "2025550101"))
}

func TestMatch_ShortContainment(t *testing.T) {
	// The loose rule matches a 4-digit extension inside a longer number;
	// suffix equality does not.
	require.True(t, Match("5501", "2025550101"))
	require.NotEqual(t, Suffix("5501"), Suffix("2025550101"))
}

func TestSuffix(t *testing.T) {
	require.Equal(t, "2025550101", Suffix("+1 (202) 555-0101"))
	require.Equal(t, "2025550101", Suffix("+1-202-555-0101"))
	require.Equal(t, "555", Suffix("555"))
	require.NotEqual(t, Suffix("3025550101"), Suffix("2025550101"))
}
