package encryption

import (
	"errors"

	"github.com/fernet/fernet-go"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

var errFernetToken = errors.New("fernet token rejected")

// fernetSealer stores a Fernet token in the envelope's ct field.
//
// The token carries its own IV and HMAC, so iv and tag stay empty. The 32-byte
// data key is used as the Fernet key: the first half signs, the second half
// encrypts with AES-128-CBC.
type fernetSealer struct{}

func fernetKey(key *cryptoDomain.EncryptionKey) (*fernet.Key, error) {
	if len(key.Key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	var k fernet.Key
	copy(k[:], key.Key)
	return &k, nil
}

func (fernetSealer) seal(key *cryptoDomain.EncryptionKey, plaintext []byte) (*cryptoDomain.Envelope, error) {
	k, err := fernetKey(key)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(k[:])

	token, err := fernet.EncryptAndSign(plaintext, k)
	if err != nil {
		return nil, err
	}
	return &cryptoDomain.Envelope{Version: key.Version, Ciphertext: token}, nil
}

func (fernetSealer) open(key *cryptoDomain.EncryptionKey, env *cryptoDomain.Envelope) ([]byte, error) {
	k, err := fernetKey(key)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(k[:])

	// ttl 0 disables token expiry; key expiry governs validity instead
	plaintext := fernet.VerifyAndDecrypt(env.Ciphertext, 0, []*fernet.Key{k})
	if plaintext == nil {
		return nil, errFernetToken
	}
	return plaintext, nil
}
