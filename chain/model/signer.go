package model

// Signer produces a producer signature over a block header digest.
// Concrete curve/key storage is an external collaborator (wallet/key
// storage is explicitly out of scope); the controller only ever calls
// Sign once per block it produces.
type Signer interface {
	Sign(digest [32]byte) ([]byte, error)
}

// KeyRecoverer recovers the signer public keys for one packed
// transaction. TransactionMetadata.SetKeyRecoverer takes a no-argument
// closure rather than this type, so a caller binds a KeyRecoverer to one
// transaction's bytes and signatures before installing it.
type KeyRecoverer func(packedTrx []byte, signatures [][]byte) ([]PublicKey, error)
