package chain

import "github.com/tokenchain/tokend/chain/model"

// pendingState holds everything start_block opens and finalize_block/
// commit_block/abort_block eventually close: the state-DB undo session,
// the token-DB savepoint, the in-construction block state, and the
// receipts accumulated so far.
type pendingState struct {
	stateSession   model.StateDBSession
	tokenSavepoint model.TokenDBSavepoint
	block          *model.BlockState
	receipts       []model.ActionReceipt
}

// blockRestorePoint is the scoped-guard ported from controller.cpp's
// make_block_restore_point (a C++ scoped_exit): it snapshots the sizes
// of the three growing slices a transaction push touches (the block
// state's transaction metadata, the block's transaction receipts and the
// pending action receipts), and — unless cancel() is called — truncates
// them back on run, undoing a partially-applied transaction's effect on
// the pending block. Both paths (cancel and run) are real call paths in
// push_transaction, so this is an explicit struct rather than a bare
// defer.
type blockRestorePoint struct {
	pending      *pendingState
	trxCount     int
	receiptCount int
	trxReceipts  int
	cancelled    bool
}

func newBlockRestorePoint(p *pendingState) *blockRestorePoint {
	return &blockRestorePoint{
		pending:      p,
		trxCount:     len(p.block.Trxs),
		receiptCount: len(p.receipts),
		trxReceipts:  len(p.block.Block.Transactions),
	}
}

func (r *blockRestorePoint) cancel() {
	r.cancelled = true
}

// run truncates the pending block's three lists back to the sizes
// recorded at construction, unless cancel() was called (the transaction
// push succeeded).
func (r *blockRestorePoint) run() {
	if r.cancelled {
		return
	}
	r.pending.block.Trxs = r.pending.block.Trxs[:r.trxCount]
	r.pending.receipts = r.pending.receipts[:r.receiptCount]
	r.pending.block.Block.Transactions = r.pending.block.Block.Transactions[:r.trxReceipts]
}
