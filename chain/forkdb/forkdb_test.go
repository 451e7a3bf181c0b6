package forkdb

import (
	"testing"
	"time"

	"github.com/tokenchain/tokend/chain/model"
)

func idOf(b byte) model.BlockID {
	var id model.BlockID
	id[31] = b
	return id
}

func block(num model.BlockNum, id, previous model.BlockID, ts time.Time) *model.SignedBlock {
	return &model.SignedBlock{
		BlockHeaderState: model.BlockHeaderState{
			BlockNum:  num,
			ID:        id,
			Previous:  previous,
			Timestamp: ts,
		},
	}
}

func TestAddRejectsUnlinkableBlock(t *testing.T) {
	db := New()
	genesis := &model.BlockState{BlockHeaderState: model.BlockHeaderState{BlockNum: 1, ID: idOf(1)}}
	db.SetGenesis(genesis)

	orphan := block(3, idOf(3), idOf(2), time.Unix(0, 0))
	if _, err := db.Add(orphan, true); err == nil {
		t.Fatalf("expected Add to reject a block whose previous is unknown")
	}
}

func TestHeadSelectsHighestBlockNum(t *testing.T) {
	db := New()
	genesis := &model.BlockState{BlockHeaderState: model.BlockHeaderState{BlockNum: 1, ID: idOf(1)}}
	db.SetGenesis(genesis)

	b2 := block(2, idOf(2), idOf(1), time.Unix(1, 0))
	if _, err := db.Add(b2, true); err != nil {
		t.Fatalf("Add b2: %s", err)
	}

	if db.Head().ID != idOf(2) {
		t.Fatalf("expected head to be block 2")
	}
}

func TestFetchBranchFromFindsLowestCommonAncestor(t *testing.T) {
	db := New()
	genesis := &model.BlockState{BlockHeaderState: model.BlockHeaderState{BlockNum: 1, ID: idOf(1)}}
	db.SetGenesis(genesis)

	// genesis(1) -> 2 -> 3a (old branch)
	//                  -> 3b -> 4b (new branch)
	b2 := block(2, idOf(2), idOf(1), time.Unix(1, 0))
	if _, err := db.Add(b2, true); err != nil {
		t.Fatalf("Add b2: %s", err)
	}
	b3a := block(3, idOf(31), idOf(2), time.Unix(2, 0))
	if _, err := db.Add(b3a, true); err != nil {
		t.Fatalf("Add b3a: %s", err)
	}
	b3b := block(3, idOf(32), idOf(2), time.Unix(2, 0))
	if _, err := db.Add(b3b, true); err != nil {
		t.Fatalf("Add b3b: %s", err)
	}
	b4b := block(4, idOf(42), idOf(32), time.Unix(3, 0))
	if _, err := db.Add(b4b, true); err != nil {
		t.Fatalf("Add b4b: %s", err)
	}

	oldBranch, newBranch, err := db.FetchBranchFrom(idOf(31), idOf(42))
	if err != nil {
		t.Fatalf("FetchBranchFrom: %s", err)
	}
	if len(oldBranch) != 1 || oldBranch[0].ID != idOf(31) {
		t.Fatalf("expected old branch to contain only block 3a, got %+v", oldBranch)
	}
	if len(newBranch) != 2 || newBranch[0].ID != idOf(42) || newBranch[1].ID != idOf(32) {
		t.Fatalf("expected new branch to be [4b, 3b], got %+v", newBranch)
	}
}

func TestIrreversibleHandlerFiresInOrderOnlyWhenPromoted(t *testing.T) {
	db := New()
	genesis := &model.BlockState{BlockHeaderState: model.BlockHeaderState{BlockNum: 1, ID: idOf(1)}}
	db.SetGenesis(genesis)

	var fired []model.BlockNum
	db.SetIrreversibleHandler(func(bs *model.BlockState) {
		fired = append(fired, bs.BlockNum)
	})

	b2 := block(2, idOf(2), idOf(1), time.Unix(1, 0))
	b2.DposIrreversibleBlockNum = 2
	if _, err := db.Add(b2, true); err != nil {
		t.Fatalf("Add b2: %s", err)
	}

	// Add alone never fires the handler; genesis counts as already
	// promoted, so nothing is pending until PromoteIrreversible runs.
	if len(fired) != 0 {
		t.Fatalf("expected Add to never fire the irreversible handler directly, got %v", fired)
	}

	db.PromoteIrreversible()
	if len(fired) != 1 || fired[0] != 2 {
		t.Fatalf("expected handler to fire for block 2 once promoted, got %v", fired)
	}

	db.PromoteIrreversible()
	if len(fired) != 1 {
		t.Fatalf("expected a second promotion with no new irreversible block to be a no-op, got %v", fired)
	}
}
