package statedb

import "testing"

func TestSquashingSessionMergesIntoBlockCheckpoint(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	block := db.StartSession(false) // block-level checkpoint
	db.Put("domains", "evt", []byte("v1"))

	trx := db.StartSession(true) // transaction-level, squashes on push
	db.Put("domains", "evt", []byte("v2"))
	trx.Push()

	v, ok := db.Get("domains", "evt")
	if !ok || string(v) != "v2" {
		t.Fatalf("expected v2 after transaction push, got %q ok=%v", v, ok)
	}

	// Undoing the block must also undo the squashed-in transaction.
	block.Push()
	db.Undo()

	if _, ok := db.Get("domains", "evt"); ok {
		t.Fatalf("expected the key to be gone once the block checkpoint is undone")
	}
}

func TestUndoRestoresPriorValue(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	db.Put("domains", "evt", []byte("before"))

	db.StartSession(true)
	db.Put("domains", "evt", []byte("after"))
	db.Undo()

	v, ok := db.Get("domains", "evt")
	if !ok || string(v) != "before" {
		t.Fatalf("expected undo to restore the prior value, got %q ok=%v", v, ok)
	}
}

func TestUndoCascadesThroughMultipleBlockCheckpoints(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	db.Put("domains", "evt", []byte("genesis"))

	b1 := db.StartSession(false)
	db.Put("domains", "evt", []byte("block1"))
	b1.Push()

	b2 := db.StartSession(false)
	db.Put("domains", "evt", []byte("block2"))
	b2.Push()

	// A reorg popping two block checkpoints in a row must walk back to
	// block1 on the first pop, then genesis on the second.
	db.Undo()
	v, ok := db.Get("domains", "evt")
	if !ok || string(v) != "block1" {
		t.Fatalf("expected popping block2's checkpoint to restore block1, got %q ok=%v", v, ok)
	}

	db.Undo()
	v, ok = db.Get("domains", "evt")
	if !ok || string(v) != "genesis" {
		t.Fatalf("expected popping block1's checkpoint to restore genesis, got %q ok=%v", v, ok)
	}
}

func TestCommitRetiresOldCheckpointsButKeepsNewerOnesPoppable(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	db.Put("domains", "evt", []byte("genesis"))

	b1 := db.StartSession(false)
	db.Put("domains", "evt", []byte("block1"))
	b1.Push()

	b2 := db.StartSession(false)
	db.Put("domains", "evt", []byte("block2"))
	b2.Push()

	db.Commit(1) // retire block1's checkpoint permanently

	if db.Revision() != 1 {
		t.Fatalf("expected revision 1 after Commit, got %d", db.Revision())
	}

	// block2's checkpoint must still be poppable.
	db.Undo()
	v, ok := db.Get("domains", "evt")
	if !ok || string(v) != "block1" {
		t.Fatalf("expected popping block2's checkpoint to restore block1, got %q ok=%v", v, ok)
	}
}

func TestDeleteThroughSession(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}

	db.Put("domains", "evt", []byte("v1"))
	s := db.StartSession(true)
	db.Delete("domains", "evt")
	s.Push()

	if _, ok := db.Get("domains", "evt"); ok {
		t.Fatalf("expected key to be deleted after push")
	}
}
