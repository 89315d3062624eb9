// Package fieldcodec converts typed Go values to the plaintext strings an
// encryption.Backend seals, and restores them after decryption.
//
// Scalars are formatted with strconv, decimals with their exact string form,
// times as RFC 3339 and calendar dates as YYYY-MM-DD. Maps, slices, arrays and
// structs are encoded as JSON, where decimals stay quoted strings and times
// keep their RFC 3339 form.
package fieldcodec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
	"github.com/dealdesk/fieldcrypt/internal/encryption"
)

// naiveTimeLayouts are accepted by Restore for timestamps written without a
// zone offset. They are interpreted as UTC.
var naiveTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// Prepare renders value as the plaintext string to encrypt. A nil value, or a
// nil pointer, yields nil so absent fields stay absent.
func Prepare(value any) (*string, error) {
	if value == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	value = rv.Interface()

	s, err := format(value, rv)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func format(value any, rv reflect.Value) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case decimal.Decimal:
		return v.String(), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case civil.Date:
		return v.String(), nil
	case civil.DateTime:
		return v.String(), nil
	case json.RawMessage:
		return string(v), nil
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		raw, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("%w: encode %T: %w", cryptoDomain.ErrValueConversion, value, err)
		}
		return string(raw), nil
	}

	if s, ok := value.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", cryptoDomain.ErrValueConversion, value)
}

// Restore parses a decrypted string into T. It fails with ErrValueConversion
// when the string does not hold a T.
func Restore[T any](decrypted string) (T, error) {
	var out T
	if err := restoreInto(decrypted, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: restore %T: %w", cryptoDomain.ErrValueConversion, out, err)
	}
	return out, nil
}

// RestoreOr is the lenient form of Restore: a conversion failure is logged and
// fallback is returned instead. Parse errors echo their input, so only the
// target type and the input length are logged.
func RestoreOr[T any](logger *slog.Logger, decrypted string, fallback T) T {
	out, err := Restore[T](decrypted)
	if err != nil {
		logger.Warn("falling back after value conversion failure",
			slog.String("type", fmt.Sprintf("%T", fallback)),
			slog.Int("length", len(decrypted)),
		)
		return fallback
	}
	return out
}

func restoreInto(s string, target any) error {
	switch t := target.(type) {
	case *string:
		*t = s
		return nil
	case *[]byte:
		*t = []byte(s)
		return nil
	case *bool:
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		*t = v
		return err
	case *decimal.Decimal:
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		*t = v
		return err
	case *time.Time:
		v, err := parseTime(strings.TrimSpace(s))
		*t = v
		return err
	case *civil.Date:
		v, err := parseDate(strings.TrimSpace(s))
		*t = v
		return err
	case *civil.DateTime:
		v, err := civil.ParseDateTime(strings.TrimSpace(s))
		*t = v
		return err
	}

	rv := reflect.ValueOf(target).Elem()
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, rv.Type().Bits())
		if err != nil {
			return err
		}
		rv.SetInt(v)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, rv.Type().Bits())
		if err != nil {
			return err
		}
		rv.SetUint(v)
		return nil
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), rv.Type().Bits())
		if err != nil {
			return err
		}
		rv.SetFloat(v)
		return nil
	case reflect.String:
		rv.SetString(s)
		return nil
	}

	return json.Unmarshal([]byte(s), target)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseDate accepts a calendar date or a full timestamp, keeping only the date
// part of the latter.
func parseDate(s string) (civil.Date, error) {
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t), nil
}

// Seal prepares value and encrypts it. A nil value yields nil without
// touching the backend.
func Seal(ctx context.Context, backend encryption.Backend, value any) (*string, error) {
	plaintext, err := Prepare(value)
	if err != nil || plaintext == nil {
		return nil, err
	}

	ciphertext, err := backend.Encrypt(ctx, *plaintext)
	if err != nil {
		return nil, err
	}
	return &ciphertext, nil
}

// Open decrypts ciphertext and restores it as T.
func Open[T any](ctx context.Context, backend encryption.Backend, ciphertext string) (T, error) {
	plaintext, err := backend.Decrypt(ctx, ciphertext)
	if err != nil {
		var zero T
		return zero, err
	}
	return Restore[T](plaintext)
}
