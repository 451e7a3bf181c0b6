package model

import "time"

// BlockHeaderState is the per-block metadata the fork database maintains
// for every candidate block, independent of whether its body is known.
type BlockHeaderState struct {
	BlockNum  BlockNum
	ID        BlockID
	Previous  BlockID
	Timestamp time.Time
	Producer  string

	ActiveSchedule      ProducerSchedule
	PendingSchedule     ProducerSchedule
	PendingScheduleHash [32]byte

	ActionMerkleRoot [32]byte
	TrxMerkleRoot    [32]byte

	DposIrreversibleBlockNum BlockNum
	BftIrreversibleBlockNum  BlockNum

	Confirmed uint16
}

// LastIrreversible is max(dpos, bft).
func (h *BlockHeaderState) LastIrreversible() BlockNum {
	if h.DposIrreversibleBlockNum > h.BftIrreversibleBlockNum {
		return h.DposIrreversibleBlockNum
	}
	return h.BftIrreversibleBlockNum
}

// SignedBlock is the full on-wire block: header fields plus the ordered
// transaction receipts and a producer signature over the header digest.
type SignedBlock struct {
	BlockHeaderState
	Transactions      []TransactionReceipt
	ProducerSignature []byte
}

// BlockState is a header state plus its full payload and the metadata of
// the transactions that produced it. In-memory only; the block log persists
// only the SignedBlock.
type BlockState struct {
	BlockHeaderState
	Block          *SignedBlock
	Trxs           []*TransactionMetadata
	Validated      bool
	InCurrentChain bool
}

// MaybePromotePending promotes the pending producer schedule to active if
// this block's dpos-irreversibility has reached the block at which the
// pending schedule was set. Returns whether a promotion happened.
func (bs *BlockState) MaybePromotePending(pendingScheduleSetAt BlockNum) bool {
	if bs.PendingSchedule.IsEmpty() {
		return false
	}
	if bs.DposIrreversibleBlockNum < pendingScheduleSetAt {
		return false
	}
	bs.ActiveSchedule = bs.PendingSchedule
	bs.PendingSchedule = ProducerSchedule{}
	bs.PendingScheduleHash = [32]byte{}
	return true
}

// GlobalProperty holds the at-most-one pending producer schedule proposal.
type GlobalProperty struct {
	ProposedSchedule         ProducerSchedule
	ProposedScheduleBlockNum BlockNum
	HasProposal              bool
	Configuration            ChainConfiguration
}

// ChainConfiguration is the genesis-derived set of chain-wide parameters
// the controller consults (e.g. transaction lifetime).
type ChainConfiguration struct {
	MaxTransactionLifetime time.Duration
}
