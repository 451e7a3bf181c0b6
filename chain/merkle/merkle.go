// Package merkle computes the action and transaction Merkle roots a
// block header commits to, matching controller.cpp's set_action_merkle /
// set_trx_merkle. Grounded on the teacher's digest-concatenation pattern
// used for block hashing; this is a standard binary Merkle tree with
// odd-node duplication, computed with sha256 (the module's one use of
// golang.org/x/crypto is blake2b for the genesis chain-id hash in
// chain/startup.go).
package merkle

import "crypto/sha256"

// Root computes the Merkle root over leaves in order. An empty input
// yields the zero digest; a single leaf is its own root.
func Root(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}
	level := leaves
	for len(level) > 1 {
		level = reduce(level)
	}
	return level[0]
}

// reduce pairs up adjacent digests, duplicating the last one if the level
// has an odd length, and returns the next level up.
func reduce(level [][32]byte) [][32]byte {
	next := make([][32]byte, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, hashPair(left, right))
	}
	return next
}

func hashPair(left, right [32]byte) [32]byte {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return sha256.Sum256(buf[:])
}
