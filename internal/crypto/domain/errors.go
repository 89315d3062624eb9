package domain

import (
	"github.com/dealdesk/fieldcrypt/internal/errors"
)

// Field encryption error definitions.
//
// These domain-specific errors wrap the categories from internal/errors so that
// callers can match either the precise failure (errors.Is(err, ErrKeyNotFound))
// or the broad category (errors.Is(err, errors.ErrNotFound)).
var (
	// ErrEncryptionFailed indicates an unexpected failure while encrypting a value,
	// most commonly because no current key could be resolved.
	ErrEncryptionFailed = errors.Wrap(errors.ErrInternal, "encryption failed")

	// ErrDecryptionFailed indicates a decryption operation failed.
	//
	// This error can occur due to:
	//   - Authentication tag mismatch (tampered ciphertext)
	//   - Malformed envelope
	//   - Unknown key version
	//
	// For security reasons, the specific cause is not disclosed to callers
	// beyond the wrapped message.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrKeyNotFound indicates no current key is configured or a requested version is absent.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "encryption key not found")

	// ErrInvalidKeyVersion indicates an explicit version lookup missed.
	ErrInvalidKeyVersion = errors.Wrap(ErrKeyNotFound, "invalid key version")

	// ErrKeyRotationFailed indicates the key store could not register a new primary key.
	// The previous primary key stays current when this error is returned.
	ErrKeyRotationFailed = errors.Wrap(errors.ErrInternal, "key rotation failed")

	// ErrConfiguration indicates missing or malformed configuration (master key,
	// store kind, backend kind or cloud parameters).
	ErrConfiguration = errors.Wrap(errors.ErrInvalidInput, "configuration error")

	// ErrInvalidKeySize indicates key material is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrUnsupportedAlgorithm indicates the requested algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidEnvelope indicates the stored string is not a well-formed envelope.
	ErrInvalidEnvelope = errors.Wrap(ErrDecryptionFailed, "invalid envelope")

	// ErrMasterKeyNotSet indicates MASTER_KEY is empty.
	ErrMasterKeyNotSet = errors.Wrap(ErrConfiguration, "master key not set")

	// ErrInvalidMasterKeyBase64 indicates MASTER_KEY is not valid base64.
	ErrInvalidMasterKeyBase64 = errors.Wrap(ErrConfiguration, "invalid master key base64")

	// ErrValueConversion indicates a decrypted string cannot be restored to the
	// requested Go type, or a value cannot be serialized for encryption.
	ErrValueConversion = errors.Wrap(errors.ErrInvalidInput, "value conversion failed")

	// ErrRotationConflict indicates another rotation committed first.
	ErrRotationConflict = errors.Wrap(errors.ErrConflict, "concurrent key rotation")
)
