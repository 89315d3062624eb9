// Package domain defines the core models for field-level encryption.
//
// Field values are sealed with versioned data keys (EncryptionKey). Each stored
// value is an Envelope that records the key version, so decryption never needs
// out-of-band information. A separate search key, derived once from the master
// key, produces deterministic search hashes that survive key rotation.
package domain

import (
	"cmp"
	"slices"
	"time"
)

// EncryptionKey is a versioned 256-bit data key.
//
// Values are treated as immutable once constructed; key stores replace keys
// wholesale instead of mutating them. At most one key per store is primary.
type EncryptionKey struct {
	Version   uint       // Monotonically increasing version, starting at 1
	Key       []byte     // Raw 32-byte key material, never persisted in plaintext
	CreatedAt time.Time  // Creation time
	ExpiresAt *time.Time // Optional end of the validity window
	IsPrimary bool       // Whether new encryptions use this key
}

// IsExpired reports whether the key has an expiry and now is past it.
func (k *EncryptionKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// IsActive reports whether the key can still be selected as current.
func (k *EncryptionKey) IsActive(now time.Time) bool {
	return !k.IsExpired(now)
}

// Clone returns a deep copy so callers cannot mutate store-owned key material.
func (k *EncryptionKey) Clone() *EncryptionKey {
	c := *k
	c.Key = slices.Clone(k.Key)
	if k.ExpiresAt != nil {
		exp := *k.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}

// SelectCurrentKey applies the current-key selection rule shared by every key store:
// prefer a key that is primary and active, otherwise the highest active version.
// Returns ErrKeyNotFound when no key is active.
func SelectCurrentKey(keys []*EncryptionKey, now time.Time) (*EncryptionKey, error) {
	var fallback *EncryptionKey
	for _, k := range keys {
		if !k.IsActive(now) {
			continue
		}
		if k.IsPrimary {
			return k, nil
		}
		if fallback == nil || k.Version > fallback.Version {
			fallback = k
		}
	}
	if fallback == nil {
		return nil, ErrKeyNotFound
	}
	return fallback, nil
}

// FindKeyVersion returns the key with the given version or ErrInvalidKeyVersion.
func FindKeyVersion(keys []*EncryptionKey, version uint) (*EncryptionKey, error) {
	for _, k := range keys {
		if k.Version == version {
			return k, nil
		}
	}
	return nil, ErrInvalidKeyVersion
}

// NextVersion returns max(version)+1, or 1 for an empty key set.
func NextVersion(keys []*EncryptionKey) uint {
	var maxVersion uint
	for _, k := range keys {
		maxVersion = max(maxVersion, k.Version)
	}
	return maxVersion + 1
}

// SortKeys orders keys by ascending version in place.
func SortKeys(keys []*EncryptionKey) {
	slices.SortFunc(keys, func(a, b *EncryptionKey) int {
		return cmp.Compare(a.Version, b.Version)
	})
}

// PromoteKey returns a new ascending key set where next is the only primary key.
// The input slice and its keys are left untouched.
func PromoteKey(keys []*EncryptionKey, next *EncryptionKey) []*EncryptionKey {
	out := make([]*EncryptionKey, 0, len(keys)+1)
	for _, k := range keys {
		c := k.Clone()
		c.IsPrimary = false
		out = append(out, c)
	}
	promoted := next.Clone()
	promoted.IsPrimary = true
	out = append(out, promoted)
	SortKeys(out)
	return out
}

// ZeroKeys wipes the key material of every key in the set.
func ZeroKeys(keys []*EncryptionKey) {
	for _, k := range keys {
		Zero(k.Key)
	}
}
