package model

// Confirmation is a producer's out-of-band attestation of a block;
// ForkDB.AddConfirmation counts it on the block it references.
type Confirmation struct {
	BlockID  BlockID
	Producer string
}

// IrreversibleHandler is the narrow callback ForkDB fires once per block
// that crosses the irreversibility threshold. It is a plain function
// value, never a typed back-pointer to the controller, so ForkDB and the
// controller never hold cyclic references to one another.
type IrreversibleHandler func(*BlockState)

// ForkDB is the in-memory tree of block header states used for head
// selection and branch discovery. It holds at most one entry per block
// id and never loses track of the genesis root.
type ForkDB interface {
	// SetGenesis initializes the tree with its root.
	SetGenesis(genesis *BlockState)

	// Add inserts a new block into the tree. It checks only that the
	// block links to a known parent; it verifies no signatures, and trust
	// has no effect on what it checks.
	Add(block *SignedBlock, trust bool) (*BlockState, error)

	// AddConfirmation counts a producer confirmation on the block it
	// references (BlockState.Confirmed). It does not derive or change
	// BFT irreversibility.
	AddConfirmation(c Confirmation) error

	// Head selects the highest-weight valid block by
	// (dposIrreversibleBlockNum, blockNum, timestamp), id tie-broken.
	Head() *BlockState

	// FetchBranchFrom returns the two chains from their lowest common
	// ancestor up to a and b respectively, ordered child -> ancestor, not
	// including the LCA itself.
	FetchBranchFrom(a, b BlockID) (aBranch, bBranch []*BlockState, err error)

	MarkInCurrentChain(state *BlockState, inChain bool)
	SetValidity(state *BlockState, valid bool)

	GetBlock(id BlockID) (*BlockState, bool)
	GetBlockInCurrentChainByNum(num BlockNum) (*BlockState, bool)

	// SetIrreversibleHandler installs the callback PromoteIrreversible
	// fires for each newly-crossed block.
	SetIrreversibleHandler(h IrreversibleHandler)

	// PromoteIrreversible fires the irreversible handler for every
	// current-chain block between the last promotion and Head()'s
	// LastIrreversible(), in block-number order. It does not run as a
	// side effect of Add/AddConfirmation/SetValidity, because those can
	// move Head() to a block the controller has only just registered,
	// not yet replayed onto the live stores — firing from there would
	// let on_irreversible commit and block-log a revision the stores
	// never actually reached. The controller calls this explicitly, only
	// once it has confirmed its own applied head matches Head().
	PromoteIrreversible()
}
