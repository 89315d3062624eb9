package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope is the self-describing storage format of an encrypted field value.
//
// The stored string is base64(JSON({"v":<int>,"iv":<b64>,"ct":<b64>,"tag":<b64>})),
// using standard padded base64 at both levels. []byte fields are encoded as
// standard base64 by encoding/json, which matches the wire format exactly.
type Envelope struct {
	Version    uint   `json:"v"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ct"`
	Tag        []byte `json:"tag"`
}

// Encode serializes the envelope into its stored string form.
func (e *Envelope) Encode() (string, error) {
	iv, ct, tag := e.IV, e.Ciphertext, e.Tag
	// nil slices would encode as JSON null
	if iv == nil {
		iv = []byte{}
	}
	if ct == nil {
		ct = []byte{}
	}
	if tag == nil {
		tag = []byte{}
	}
	raw, err := json.Marshal(Envelope{Version: e.Version, IV: iv, Ciphertext: ct, Tag: tag})
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ValidateAEAD checks the nonce and tag sizes required by the AEAD algorithms.
func (e *Envelope) ValidateAEAD() error {
	if len(e.IV) != NonceSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrInvalidEnvelope, NonceSize, len(e.IV))
	}
	if len(e.Tag) != TagSize {
		return fmt.Errorf("%w: tag must be %d bytes, got %d", ErrInvalidEnvelope, TagSize, len(e.Tag))
	}
	return nil
}

// DecodeEnvelope parses a stored string back into an Envelope.
// Returns ErrInvalidEnvelope when the outer base64, the JSON body or the
// version field is malformed.
func DecodeEnvelope(s string) (*Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Version == 0 {
		return nil, fmt.Errorf("%w: missing key version", ErrInvalidEnvelope)
	}
	if len(env.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: missing ciphertext", ErrInvalidEnvelope)
	}

	return &env, nil
}

// PeekVersion returns the key version recorded in a stored string without
// touching the ciphertext.
func PeekVersion(s string) (uint, error) {
	env, err := DecodeEnvelope(s)
	if err != nil {
		return 0, err
	}
	return env.Version, nil
}
