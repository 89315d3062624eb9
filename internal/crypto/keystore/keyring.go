package keystore

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	cryptoDomain "github.com/dealdesk/fieldcrypt/internal/crypto/domain"
)

// keyringEntry is the JSON form of a wrapped key in a key ring document.
type keyringEntry struct {
	Version   uint       `json:"version"`
	Key       []byte     `json:"key"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IsPrimary bool       `json:"is_primary"`
}

// keyring is a whole key set serialized as one document. Stores that keep the
// ring in a single object replace it wholesale, which makes rotation atomic
// from the reader's point of view.
type keyring struct {
	Keys []keyringEntry `json:"keys"`
}

func decodeKeyring(data []byte) (*keyring, error) {
	var ring keyring
	if len(data) == 0 {
		return &ring, nil
	}
	if err := json.Unmarshal(data, &ring); err != nil {
		return nil, fmt.Errorf("%w: invalid key ring document: %v", cryptoDomain.ErrConfiguration, err)
	}
	return &ring, nil
}

func (r *keyring) encode() ([]byte, error) {
	return json.Marshal(r)
}

func (r *keyring) wrappedKeys() []*cryptoDomain.WrappedKey {
	out := make([]*cryptoDomain.WrappedKey, 0, len(r.Keys))
	for _, e := range r.Keys {
		out = append(out, &cryptoDomain.WrappedKey{
			Version:    e.Version,
			WrappedKey: e.Key,
			CreatedAt:  e.CreatedAt,
			ExpiresAt:  e.ExpiresAt,
			IsPrimary:  e.IsPrimary,
		})
	}
	return out
}

// promote returns a new ring holding every existing entry as non-primary plus
// w as the only primary, ordered by version.
func (r *keyring) promote(w *cryptoDomain.WrappedKey) *keyring {
	next := &keyring{Keys: make([]keyringEntry, 0, len(r.Keys)+1)}
	for _, e := range r.Keys {
		e.IsPrimary = false
		next.Keys = append(next.Keys, e)
	}
	next.Keys = append(next.Keys, keyringEntry{
		Version:   w.Version,
		Key:       w.WrappedKey,
		CreatedAt: w.CreatedAt,
		ExpiresAt: w.ExpiresAt,
		IsPrimary: true,
	})
	slices.SortFunc(next.Keys, func(a, b keyringEntry) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return next
}
