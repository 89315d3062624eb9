// Package validation provides jellydator/validation rules for configuration
// values and SQL identifiers.
package validation

import (
	"encoding/base64"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"
)

var (
	// identifierRegex matches unquoted SQL identifiers accepted by both PostgreSQL and MySQL
	identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// Base64Key validates that a string is standard base64. A positive Size
// also requires the decoded value to be exactly Size bytes.
type Base64Key struct {
	Size int
}

// Base64 accepts any standard base64 string.
var Base64 = Base64Key{}

// Validate checks the decoded length
func (k Base64Key) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_base64_key_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return validation.NewError("validation_base64", "must be valid base64-encoded data")
	}
	if k.Size > 0 && len(raw) != k.Size {
		return validation.NewError("validation_base64_key_size", "must decode to the expected key size")
	}
	return nil
}

// SQLIdentifier validates an unquoted table or column name
var SQLIdentifier = validation.NewStringRuleWithError(
	func(s string) bool {
		return identifierRegex.MatchString(s)
	},
	validation.NewError("validation_sql_identifier", "must be a plain SQL identifier"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
