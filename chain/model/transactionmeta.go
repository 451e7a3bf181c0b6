package model

import "sync"

// TransactionMetadata wraps one transaction as it flows through the
// controller: its packed bytes, both of its ids, and a lazily-computed,
// write-once cache of recovered signer keys.
type TransactionMetadata struct {
	PackedTrx []byte
	Trx       *Transaction
	ID        [32]byte // hash of the unsigned body
	SignedID  [32]byte // hash including signatures

	Accepted bool // "accepted_transaction" signal emitted latch

	keysOnce      sync.Once
	recoveredKeys []PublicKey
	keyRecoverer  func() ([]PublicKey, error)
	keyErr        error
}

// PublicKey is an opaque recovered signer key. Concrete curve/serialization
// is an external collaborator; the controller only ever compares these for
// equality and passes them to the authorization checker.
type PublicKey string

// SetKeyRecoverer installs the (possibly expensive) recovery function used
// the first time RecoverKeys is called. Safe to call only before the first
// RecoverKeys call.
func (t *TransactionMetadata) SetKeyRecoverer(f func() ([]PublicKey, error)) {
	t.keyRecoverer = f
}

// RecoverKeys returns the signer public keys, computing and caching them on
// first call. Subsequent calls return the cached value even across
// fork-switch replays.
func (t *TransactionMetadata) RecoverKeys() ([]PublicKey, error) {
	t.keysOnce.Do(func() {
		if t.keyRecoverer == nil {
			t.recoveredKeys = nil
			return
		}
		t.recoveredKeys, t.keyErr = t.keyRecoverer()
	})
	return t.recoveredKeys, t.keyErr
}
