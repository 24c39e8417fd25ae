package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewOrderCodeIsDigitsOnly(t *testing.T) {
	code := NewOrderCode(time.UnixMilli(1700000000123))
	require.Equal(t, "1700000000123", code)
}

func TestOrderCodeSuffix(t *testing.T) {
	require.Equal(t, "000123", OrderCodeSuffix("1700000000123"))
	require.Equal(t, "12345", OrderCodeSuffix("12345"))
}

func TestParseDescriptionSuffixes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "single_code",
			in:   "NAP TIEN 000123 cam on",
			want: []string{"000123"},
		},
		{
			name: "long_run_takes_trailing_digits",
			in:   "transfer 1700000000123",
			want: []string{"000123"},
		},
		{
			name: "short_runs_ignored",
			in:   "ngay 12 thang 3 nam 2024",
			want: nil,
		},
		{
			name: "multiple_codes",
			in:   "123456 and 654321",
			want: []string{"123456", "654321"},
		},
		{
			name: "duplicates_collapsed",
			in:   "123456 123456",
			want: []string{"123456"},
		},
		{
			name: "empty",
			in:   "",
			want: nil,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseDescriptionSuffixes(tc.in))
		})
	}
}
