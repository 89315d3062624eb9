package validation

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBase64Key(t *testing.T) {
	rule := Base64Key{Size: 32}

	tests := []struct {
		name      string
		input     interface{}
		shouldErr bool
	}{
		{name: "32 zero bytes", input: base64.StdEncoding.EncodeToString(make([]byte, 32))},
		{name: "empty is left to Required", input: ""},
		{name: "surrounding newline", input: base64.StdEncoding.EncodeToString(make([]byte, 32)) + "\n"},
		{name: "too short", input: base64.StdEncoding.EncodeToString(make([]byte, 16)), shouldErr: true},
		{name: "too long", input: base64.StdEncoding.EncodeToString(make([]byte, 33)), shouldErr: true},
		{name: "not base64", input: "not*base64", shouldErr: true},
		{name: "url alphabet", input: base64.URLEncoding.EncodeToString(bytes.Repeat([]byte{0xfb}, 32)), shouldErr: true},
		{name: "not a string", input: 42, shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBase64(t *testing.T) {
	assert.NoError(t, Base64.Validate("aGVsbG8="))
	assert.NoError(t, Base64.Validate(""))
	assert.Error(t, Base64.Validate("%%%"))
	assert.Error(t, Base64.Validate(1))
}

func TestSQLIdentifier(t *testing.T) {
	valid := []string{"contacts", "email_encrypted", "_private", "T1"}
	for _, v := range valid {
		assert.NoError(t, SQLIdentifier.Validate(v), v)
	}

	invalid := []string{
		"1contacts",
		"contacts.email",
		"contacts;--",
		`"contacts"`,
		"contacts email",
		strings.Repeat("a", 64),
	}
	for _, v := range invalid {
		assert.Error(t, SQLIdentifier.Validate(v), v)
	}
}

func TestStringRules(t *testing.T) {
	tests := []struct {
		rule    string
		input   string
		wantErr bool
	}{
		{rule: "NoWhitespace", input: "https://vault.internal:8200"},
		{rule: "NoWhitespace", input: "fieldcrypt keyring"},
		{rule: "NoWhitespace", input: " hvs.token", wantErr: true},
		{rule: "NoWhitespace", input: "hvs.token\n", wantErr: true},
		{rule: "NotBlank", input: "postgres://db/fieldcrypt"},
		{rule: "NotBlank", input: " \t\n ", wantErr: true},
	}

	rules := map[string]interface{ Validate(any) error }{
		"NoWhitespace": NoWhitespace,
		"NotBlank":     NotBlank,
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+strings.TrimSpace(tt.input), func(t *testing.T) {
			err := rules[tt.rule].Validate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
