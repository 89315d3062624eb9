package domain

// Algorithm represents the cipher used to seal field values.
//
// Every algorithm provides authenticated encryption so that a tampered
// envelope is rejected instead of decrypting to the wrong plaintext.
//
// Algorithm selection guidelines:
//   - Use AESGCM on modern CPUs with AES-NI hardware acceleration
//   - Use ChaCha20 on systems without AES-NI
//   - Use Fernet only for compatibility with existing Fernet tokens
type Algorithm string

const (
	// AESGCM represents the AES-256-GCM authenticated encryption algorithm.
	//
	// Key features:
	//   - 256-bit key size
	//   - 12-byte nonce (96 bits)
	//   - 16-byte authentication tag
	//   - Hardware acceleration on modern CPUs
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents the ChaCha20-Poly1305 authenticated encryption algorithm.
	//
	// Key features:
	//   - 256-bit key size
	//   - 12-byte nonce (96 bits)
	//   - 16-byte authentication tag
	//   - Constant-time software implementation
	ChaCha20 Algorithm = "chacha20-poly1305"

	// Fernet represents AES-128-CBC with HMAC-SHA256 as specified by the Fernet token format.
	//
	// The 32-byte key is split into a 16-byte signing key and a 16-byte encryption key.
	// IV and MAC travel inside the token, so the envelope only carries the token.
	Fernet Algorithm = "fernet"
)

const (
	// KeySize is the size in bytes of every data key and of the master key.
	KeySize = 32

	// NonceSize is the AEAD nonce size in bytes.
	NonceSize = 12

	// TagSize is the AEAD authentication tag size in bytes.
	TagSize = 16

	// SearchKeyIterations is the PBKDF2 iteration count for the search key.
	SearchKeyIterations = 100000

	// SearchKeySalt is the fixed PBKDF2 salt for the search key. Changing it
	// changes every search hash ever produced.
	SearchKeySalt = "fieldcrypt-search-key-v1"

	// LocalBootstrapInfo is the HKDF info string used to derive version 1 for an
	// empty local key table.
	LocalBootstrapInfo = "fieldcrypt-local-key-v1"
)
