package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Parsed
	}{
		{
			name: "street with apt and city state zip",
			in:   "123 Main St Apt 4B\nLos Angeles, CA 90012",
			want: Parsed{
				StreetAddress: strPtr("123 Main St"),
				Unit:          strPtr("4B"),
				City:          strPtr("Los Angeles"),
				State:         strPtr("CA"),
				Zip:           strPtr("90012"),
			},
		},
		{
			name: "unit keyword with hash",
			in:   "1038 S Mariposa Ave Unit #501, Los Angeles, CA 90006",
			want: Parsed{
				StreetAddress: strPtr("1038 S Mariposa Ave"),
				Unit:          strPtr("501"),
				City:          strPtr("Los Angeles"),
				State:         strPtr("CA"),
				Zip:           strPtr("90006"),
			},
		},
		{
			name: "suite designator",
			in:   "200 Wilshire Blvd Suite 210, Santa Monica, CA 90401",
			want: Parsed{
				StreetAddress: strPtr("200 Wilshire Blvd"),
				Unit:          strPtr("210"),
				City:          strPtr("Santa Monica"),
				State:         strPtr("CA"),
				Zip:           strPtr("90401"),
			},
		},
		{
			name: "no unit at all",
			in:   "742 Evergreen Terrace, Springfield, OR 97401",
			want: Parsed{
				StreetAddress: strPtr("742 Evergreen Terrace"),
				City:          strPtr("Springfield"),
				State:         strPtr("OR"),
				Zip:           strPtr("97401"),
			},
		},
		{
			name: "zip+4",
			in:   "500 Grand Ave Apt 12, Los Angeles, CA 90071-1234",
			want: Parsed{
				StreetAddress: strPtr("500 Grand Ave"),
				Unit:          strPtr("12"),
				City:          strPtr("Los Angeles"),
				State:         strPtr("CA"),
				Zip:           strPtr("90071-1234"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in)
			if tt.want.StreetAddress != nil {
				require.NotNil(t, got.StreetAddress)
				assert.Contains(t, *got.StreetAddress, *tt.want.StreetAddress)
			}
			assert.Equal(t, tt.want.Unit, got.Unit)
			if tt.want.City != nil {
				require.NotNil(t, got.City)
				assert.Equal(t, *tt.want.City, *got.City)
			}
			assert.Equal(t, tt.want.State, got.State)
			assert.Equal(t, tt.want.Zip, got.Zip)
		})
	}
}

func TestParse_BareTrailingNumberFallback(t *testing.T) {
	// No unit keyword anywhere; the bare number on its own line is picked up
	// by the last fallback pattern.
	got := Parse("456 Oak Ave\nLos Angeles, CA 90012\n5")

	require.NotNil(t, got.Unit)
	assert.Equal(t, "5", *got.Unit)
}

func TestParse_LineAnchoredKeyword(t *testing.T) {
	got := Parse("900 Figueroa St\nUnit 7A\nLos Angeles, CA 90015")

	require.NotNil(t, got.Unit)
	assert.Equal(t, "7A", *got.Unit)
	require.NotNil(t, got.Zip)
	assert.Equal(t, "90015", *got.Zip)
}

func TestParse_NeverPanicsOnGarbage(t *testing.T) {
	for _, in := range []string{"", "\n\n", "???", "12345", "CA"} {
		assert.NotPanics(t, func() { Parse(in) })
	}
}
