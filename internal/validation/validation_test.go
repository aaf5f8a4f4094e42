package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{
			name:    "valid email",
			email:   "test@example.com",
			wantErr: false,
		},
		{
			name:    "valid email with subdomain",
			email:   "proctor@mail.example.com",
			wantErr: false,
		},
		{
			name:    "valid email with plus",
			email:   "user+tag@example.com",
			wantErr: false,
		},
		{
			name:    "missing @",
			email:   "testexample.com",
			wantErr: true,
		},
		{
			name:    "missing domain",
			email:   "test@",
			wantErr: true,
		},
		{
			name:    "missing local part",
			email:   "@example.com",
			wantErr: true,
		},
		{
			name:    "empty string",
			email:   "",
			wantErr: true,
		},
		{
			name:    "spaces in email",
			email:   "test @example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail("email", tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateLanguage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "two letters",
			input:   "fr",
			wantErr: false,
		},
		{
			name:    "with region",
			input:   "pt-br",
			wantErr: false,
		},
		{
			name:    "full word",
			input:   "english",
			wantErr: false,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "uppercase",
			input:   "FR",
			wantErr: true,
		},
		{
			name:    "single letter",
			input:   "f",
			wantErr: true,
		},
		{
			name:    "path characters",
			input:   "fr/../es",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLanguage(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{
			name:    "slug",
			id:      "spring-cup",
			wantErr: false,
		},
		{
			name:    "mixed",
			id:      "Cup_2026.v2",
			wantErr: false,
		},
		{
			name:    "empty",
			id:      "   ",
			wantErr: true,
		},
		{
			name:    "slash",
			id:      "spring/cup",
			wantErr: true,
		},
		{
			name:    "leading dash",
			id:      "-cup",
			wantErr: true,
		},
		{
			name:    "too long",
			id:      strings.Repeat("a", MaxIdentifierLength+1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier("id", tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			var ve ValidationError
			if err != nil && (!errors.As(err, &ve) || ve.Field != "id") {
				t.Errorf("error %v is not a ValidationError for field id", err)
			}
		})
	}
}
