package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"local safaricom format", "0712345678", "254712345678"},
		{"local airtel format", "0101234567", "254101234567"},
		{"international with plus", "+254712345678", "254712345678"},
		{"international without plus", "254712345678", "254712345678"},
		{"spaces stripped", "0712 345 678", "254712345678"},
		{"dashes stripped", "0712-345-678", "254712345678"},
		{"plus and spaces", "+254 712 345 678", "254712345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhoneNumberRejectsGarbage(t *testing.T) {
	invalid := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too short for any format", "12345"},
		{"too long", "07123456789"},
		{"too short", "071234567"},
		{"not a mobile prefix", "0812345678"},
		{"wrong country code", "25571234567"},
		{"letters", "notaphone"},
		{"digits mixed with letters", "+2547abc45678"},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizePhoneNumber(tt.input)
			require.Error(t, err)

			var perr *PaymentError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, ErrCodeInvalidPhone, perr.Code)
		})
	}
}
