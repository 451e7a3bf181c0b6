// Package forkdb implements the in-memory fork database described in
// spec §4.4: a tree of block header states used for head selection and
// branch discovery during a reorg. Grounded on blockdag's in-memory block
// index (blockdag/dag.go) generalized from a DAG with multiple tips down
// to DPoS's single-producer-chain-per-height shape: each block has
// exactly one parent, but forks still diverge below the head until
// irreversibility catches up.
package forkdb

import (
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/tokenchain/tokend/chain/model"
	"github.com/tokenchain/tokend/infrastructure/logger"
)

var log = logger.RegisterSubSystem("FORK")

// ForkDB is the in-memory tree of candidate block states.
type ForkDB struct {
	mu sync.Mutex

	blocks map[model.BlockID]*model.BlockState
	byNum  map[model.BlockNum]model.BlockID // current-chain index only

	genesis model.BlockID
	head    model.BlockID

	// lastPromoted is the highest block number PromoteIrreversible has
	// already fired the handler for; genesis counts as pre-promoted
	// since it is established directly by startup, never through
	// on_irreversible's block-log append.
	lastPromoted model.BlockNum

	irreversibleHandler model.IrreversibleHandler
}

// New returns an empty fork database. Call SetGenesis before using it.
func New() *ForkDB {
	return &ForkDB{
		blocks: make(map[model.BlockID]*model.BlockState),
		byNum:  make(map[model.BlockNum]model.BlockID),
	}
}

func (db *ForkDB) SetGenesis(genesis *model.BlockState) {
	db.mu.Lock()
	defer db.mu.Unlock()
	genesis.Validated = true
	genesis.InCurrentChain = true
	db.blocks[genesis.ID] = genesis
	db.byNum[genesis.BlockNum] = genesis.ID
	db.genesis = genesis.ID
	db.head = genesis.ID
	db.lastPromoted = genesis.BlockNum
}

// Add inserts block into the tree as a BlockState derived from its
// header. It is optimistically marked Validated so header-only fork
// choice can consider it immediately; the controller calls SetValidity
// to retract that if the block later fails to apply. trust only governs
// what the controller skips when it does get around to applying the
// block (expiration/TaPoS re-checks for already-proven blocks) and has
// no bearing on the tree's own bookkeeping.
func (db *ForkDB) Add(block *model.SignedBlock, trust bool) (*model.BlockState, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.blocks[block.ID]; exists {
		return db.blocks[block.ID], nil
	}
	if _, ok := db.blocks[block.Previous]; !ok && block.ID != db.genesis {
		return nil, model.ErrUnknownBlock.WithCause(errors.Errorf(
			"forkdb: unlinkable block %d (%s): previous %s not known",
			block.BlockNum, block.ID, block.Previous))
	}

	bs := &model.BlockState{
		BlockHeaderState: block.BlockHeaderState,
		Block:            block,
		Validated:        true,
	}
	db.blocks[block.ID] = bs
	db.recomputeHead()
	return bs, nil
}

func (db *ForkDB) AddConfirmation(c model.Confirmation) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	bs, ok := db.blocks[c.BlockID]
	if !ok {
		return model.ErrUnknownBlock.WithCause(errors.Errorf(
			"forkdb: confirmation for unknown block %s", c.BlockID))
	}
	bs.Confirmed++
	db.recomputeHead()
	return nil
}

// recomputeHead selects the highest-weight valid tip by
// (dposIrreversibleBlockNum, blockNum, timestamp), id tie-broken. It only
// updates the tree's own bookkeeping (head, in-current-chain flags,
// byNum): the block a header-only Add/AddConfirmation/SetValidity call
// makes best is not necessarily one the controller has replayed onto
// the live stores yet, so irreversibility promotion is never fired from
// here — see PromoteIrreversible.
func (db *ForkDB) recomputeHead() {
	var best *model.BlockState
	for _, bs := range db.blocks {
		if !bs.Validated {
			continue
		}
		if best == nil || better(bs, best) {
			best = bs
		}
	}
	if best == nil {
		return
	}
	if best.ID != db.head {
		log.Debugf("fork db head switched to block %d (%s)", best.BlockNum, best.ID)
		if log.Level() <= logger.LevelTrace {
			log.Tracef("fork db state at switch:\n%s", spew.Sdump(db.blocks))
		}
	}
	db.markCurrentChain(best.ID)
	db.head = best.ID
}

// PromoteIrreversible fires the irreversible handler for every
// current-chain block between the last promotion and the current head's
// LastIrreversible(), in order, and advances the promotion watermark.
// The caller is responsible for only invoking this once its own applied
// state actually matches Head() — see the ForkDB interface doc.
func (db *ForkDB) PromoteIrreversible() {
	db.mu.Lock()
	defer db.mu.Unlock()

	head, ok := db.blocks[db.head]
	if !ok || db.irreversibleHandler == nil {
		return
	}
	newIrreversible := head.LastIrreversible()
	for num := db.lastPromoted + 1; num <= newIrreversible; num++ {
		if id, ok := db.byNum[num]; ok {
			db.irreversibleHandler(db.blocks[id])
		}
	}
	if newIrreversible > db.lastPromoted {
		db.lastPromoted = newIrreversible
	}
}

func better(a, b *model.BlockState) bool {
	if a.DposIrreversibleBlockNum != b.DposIrreversibleBlockNum {
		return a.DposIrreversibleBlockNum > b.DposIrreversibleBlockNum
	}
	if a.BlockNum != b.BlockNum {
		return a.BlockNum > b.BlockNum
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return string(a.ID[:]) < string(b.ID[:])
}

// markCurrentChain walks from newHead back to the genesis, flagging every
// visited block InCurrentChain and rebuilding byNum; blocks on the
// displaced branch are unflagged.
func (db *ForkDB) markCurrentChain(newHead model.BlockID) {
	for _, bs := range db.blocks {
		bs.InCurrentChain = false
	}
	db.byNum = make(map[model.BlockNum]model.BlockID)

	id := newHead
	for {
		bs, ok := db.blocks[id]
		if !ok {
			return
		}
		bs.InCurrentChain = true
		db.byNum[bs.BlockNum] = id
		if id == db.genesis {
			return
		}
		id = bs.Previous
	}
}

func (db *ForkDB) Head() *model.BlockState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.blocks[db.head]
}

// FetchBranchFrom returns the two chains from their lowest common ancestor
// up to a and b respectively, ordered child -> ancestor, not including the
// LCA itself.
func (db *ForkDB) FetchBranchFrom(a, b model.BlockID) (aBranch, bBranch []*model.BlockState, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	aChain, err := db.chainToGenesis(a)
	if err != nil {
		return nil, nil, err
	}
	bChain, err := db.chainToGenesis(b)
	if err != nil {
		return nil, nil, err
	}

	bSet := make(map[model.BlockID]int, len(bChain))
	for i, bs := range bChain {
		bSet[bs.ID] = i
	}

	lcaIdxInA := -1
	lcaIdxInB := -1
	for i, bs := range aChain {
		if j, ok := bSet[bs.ID]; ok {
			lcaIdxInA = i
			lcaIdxInB = j
			break
		}
	}
	if lcaIdxInA == -1 {
		return nil, nil, model.ErrConsistency.WithCause(errors.New(
			"forkdb: no common ancestor between branches, fork db is corrupt"))
	}

	return aChain[:lcaIdxInA], bChain[:lcaIdxInB], nil
}

// chainToGenesis returns id's ancestry, ordered child -> genesis inclusive.
func (db *ForkDB) chainToGenesis(id model.BlockID) ([]*model.BlockState, error) {
	var chain []*model.BlockState
	for {
		bs, ok := db.blocks[id]
		if !ok {
			return nil, model.ErrUnknownBlock.WithCause(errors.Errorf(
				"forkdb: block %s not present while walking to genesis", id))
		}
		chain = append(chain, bs)
		if id == db.genesis {
			return chain, nil
		}
		id = bs.Previous
	}
}

func (db *ForkDB) MarkInCurrentChain(state *model.BlockState, inChain bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state.InCurrentChain = inChain
}

func (db *ForkDB) SetValidity(state *model.BlockState, valid bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	state.Validated = valid
	db.recomputeHead()
}

func (db *ForkDB) GetBlock(id model.BlockID) (*model.BlockState, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	bs, ok := db.blocks[id]
	return bs, ok
}

func (db *ForkDB) GetBlockInCurrentChainByNum(num model.BlockNum) (*model.BlockState, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	id, ok := db.byNum[num]
	if !ok {
		return nil, false
	}
	return db.blocks[id], true
}

func (db *ForkDB) SetIrreversibleHandler(h model.IrreversibleHandler) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.irreversibleHandler = h
}

// DumpTree renders the full block-state tree for failure output in
// reorg tests, where a plain %+v of the map is too dense to read a diff
// out of.
func (db *ForkDB) DumpTree() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return spew.Sdump(db.blocks)
}

var _ model.ForkDB = (*ForkDB)(nil)
