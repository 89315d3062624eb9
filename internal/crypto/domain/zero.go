package domain

// Zero overwrites key material in place. Safe to call with nil.
func Zero(b []byte) {
	clear(b)
}
