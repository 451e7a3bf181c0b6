// Package chain implements the block-production and chain-advancement
// controller: pending block assembly, fork choice/reorg, and the
// dual-store transaction boundary over statedb, tokendb and blocklog.
// Ported from original_source/libraries/chain/controller.cpp.
package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/tokenchain/tokend/chain/auth"
	"github.com/tokenchain/tokend/chain/contracts"
	"github.com/tokenchain/tokend/chain/merkle"
	"github.com/tokenchain/tokend/chain/model"
)

// blockSummaryRingSize matches spec.md's 65536-slot ring (block_num & 0xffff).
const blockSummaryRingSize = 1 << 16

// Controller is not safe for concurrent access: exactly one logical
// goroutine is expected to drive start_block/push_transaction/.../
// commit_block/push_block in sequence, the same single-threaded
// assumption controller.cpp makes (callers serialize externally).
type Controller struct {
	stateDB  model.StateDB
	tokenDB  model.TokenDB
	blockLog model.BlockLog
	forkDB   model.ForkDB
	handlers contracts.Registry
	signer   model.Signer
	conf     model.ChainConfiguration

	globalProperty model.GlobalProperty
	blockSummary   [blockSummaryRingSize]model.BlockID
	unapplied      map[[32]byte]*model.TransactionMetadata

	pending *pendingState

	// appliedHead is the block id the stores currently reflect: the tip
	// of whichever branch apply_block last replayed onto them. It tracks
	// forkDB.Head() except transiently during push_block/maybe_switch_forks,
	// when the fork db's notion of the best branch has moved but the
	// stores haven't caught up yet.
	appliedHead model.BlockID

	replaying bool
}

// New wires a controller over already-open stores. SetGenesis must have
// been called on forkDB (directly, or via Bootstrap) before any
// block is produced or pushed.
func New(stateDB model.StateDB, tokenDB model.TokenDB, blockLog model.BlockLog, forkDB model.ForkDB, signer model.Signer, conf model.ChainConfiguration) *Controller {
	c := &Controller{
		stateDB:   stateDB,
		tokenDB:   tokenDB,
		blockLog:  blockLog,
		forkDB:    forkDB,
		handlers:  contracts.DefaultHandlers(),
		signer:    signer,
		conf:      conf,
		unapplied: make(map[[32]byte]*model.TransactionMetadata),
	}
	forkDB.SetIrreversibleHandler(c.onIrreversible)
	if head := forkDB.Head(); head != nil {
		c.appliedHead = head.ID
	}
	return c
}

// Head returns the fork db's head. The block the stores currently
// reflect (appliedHead) differs from it only transiently mid-reorg.
func (c *Controller) Head() *model.BlockState {
	return c.forkDB.Head()
}

// PendingOpen reports whether a block is currently being assembled.
func (c *Controller) PendingOpen() bool {
	return c.pending != nil
}

// StartBlock opens a new pending block on top of the current head,
// matching controller.cpp's start_block: opens the state-DB checkpoint
// session and the token-DB block savepoint, seeds the new block's header
// from the head's schedules, and promotes a pending producer schedule if
// irreversibility has caught up to it.
func (c *Controller) StartBlock(producer string, timestamp time.Time) error {
	if c.pending != nil {
		return model.ErrConsistency.WithCause(errf("start_block called while a block is already pending"))
	}

	head := c.forkDB.Head()
	if head == nil {
		return model.ErrConsistency.WithCause(errf("start_block: fork db has no head, genesis not set"))
	}

	nextNum := head.BlockNum + 1
	bs := &model.BlockState{
		BlockHeaderState: model.BlockHeaderState{
			BlockNum:                 nextNum,
			Previous:                 head.ID,
			Timestamp:                timestamp,
			Producer:                 producer,
			ActiveSchedule:           head.ActiveSchedule,
			PendingSchedule:          head.PendingSchedule,
			PendingScheduleHash:      head.PendingScheduleHash,
			DposIrreversibleBlockNum: head.DposIrreversibleBlockNum,
			BftIrreversibleBlockNum:  head.BftIrreversibleBlockNum,
		},
		Block: &model.SignedBlock{},
	}
	c.maybePromotePendingSchedule(bs)

	c.pending = &pendingState{
		stateSession:   c.stateDB.StartSession(false),
		tokenSavepoint: c.tokenDB.NewSavepointSession(nextNum),
		block:          bs,
	}
	c.clearExpiredInputTransactions(timestamp)
	log.Debugf("start_block %d by %q", nextNum, producer)
	return nil
}

// clearExpiredInputTransactions drops unapplied transactions whose
// expiration has passed, mirroring controller.cpp's cleanup pass at the
// top of start_block.
func (c *Controller) clearExpiredInputTransactions(now time.Time) {
	for id, meta := range c.unapplied {
		if meta.Trx != nil && !meta.Trx.Expiration.After(now) {
			delete(c.unapplied, id)
		}
	}
}

// ValidateExpiration checks a transaction's expiration window against
// chain configuration, matching controller.cpp's validate_expiration.
func (c *Controller) ValidateExpiration(trx *model.Transaction, now time.Time) error {
	if !trx.Expiration.After(now) {
		return model.ErrExpiredTx
	}
	if trx.Expiration.After(now.Add(c.conf.MaxTransactionLifetime)) {
		return model.ErrTxExpTooFar
	}
	return nil
}

// ValidateTapos checks a transaction's TaPoS reference against the
// block summary ring, matching controller.cpp's validate_tapos.
func (c *Controller) ValidateTapos(trx *model.Transaction) error {
	refBlockNum := model.BlockNum(trx.RefBlockNum)
	ref := c.blockSummaryAt(refBlockNum)
	if ref.IsZero() {
		return model.ErrInvalidRefBlock.WithCause(errf("no block summary recorded for ref block %d", refBlockNum))
	}
	var prefix [4]byte
	copy(prefix[:], ref[:4])
	if prefix != trx.RefBlockID {
		return model.ErrInvalidRefBlock.WithCause(errf("tapos prefix mismatch at ref block %d", refBlockNum))
	}
	return nil
}

// GetRequiredKeys resolves the minimal set of provided keys that
// satisfy trx's actions, matching controller.cpp's get_required_keys: it
// runs the same authorization pass push_transaction would, without
// mutating any store.
func (c *Controller) GetRequiredKeys(trx *model.Transaction, provided []model.PublicKey) ([]model.PublicKey, error) {
	checker := auth.NewChecker(c.tokenDB, provided)
	for _, action := range trx.Actions {
		if !checker.Satisfied(action) {
			return nil, model.ErrTxMissingSigs.WithCause(errf(
				"action %q on %s/%s is not satisfied by any provided key", action.Name, action.Domain, action.Key))
		}
	}
	return checker.UsedKeys(), nil
}

// PushTransaction validates and applies one transaction against the
// currently pending block, matching controller.cpp's push_transaction:
// a failed transaction leaves the block unaffected (its state-DB and
// token-DB writes are undone, and the pending block's trx/receipt lists
// are truncated back via the restore point), and is classified
// subjective/objective to decide whether it is retried later.
func (c *Controller) PushTransaction(meta *model.TransactionMetadata, now time.Time) error {
	if c.pending == nil {
		return model.ErrConsistency.WithCause(errf("push_transaction called with no pending block"))
	}

	if err := c.ValidateExpiration(meta.Trx, now); err != nil {
		return err
	}
	if err := c.ValidateTapos(meta.Trx); err != nil {
		return err
	}

	restore := newBlockRestorePoint(c.pending)

	txStateSession := c.stateDB.StartSession(true)
	txSavepoint := c.tokenDB.NewSavepointSession(c.pending.block.BlockNum)

	receipts, err := c.applyTransaction(meta)
	if err != nil {
		txStateSession.Undo()
		c.tokenDB.RollbackToLatestSavepoint()
		restore.run()

		if model.IsSubjective(err) {
			log.Debugf("push_transaction %x: subjective failure, keeping for retry: %s", meta.ID, err)
		} else {
			delete(c.unapplied, meta.SignedID)
			log.Debugf("push_transaction %x: objective failure, dropped: %s", meta.ID, err)
		}
		return err
	}

	txStateSession.Push()
	txSavepoint.Accept()
	restore.cancel()

	meta.Accepted = true
	c.pending.block.Trxs = append(c.pending.block.Trxs, meta)
	c.pending.receipts = append(c.pending.receipts, receipts...)
	c.pending.block.Block.Transactions = append(c.pending.block.Block.Transactions, model.TransactionReceipt{
		PackedTrx: meta.PackedTrx,
		Status:    model.TransactionStatusExecuted,
	})
	delete(c.unapplied, meta.SignedID)

	log.Debugf("push_transaction %x applied, %d action receipts", meta.ID, len(receipts))
	return nil
}

// FinalizeBlock computes the pending block's action and transaction
// Merkle roots, matching controller.cpp's finalize_block.
func (c *Controller) FinalizeBlock() error {
	if c.pending == nil {
		return model.ErrConsistency.WithCause(errf("finalize_block called with no pending block"))
	}

	actionLeaves := make([][32]byte, len(c.pending.receipts))
	for i, r := range c.pending.receipts {
		actionLeaves[i] = r.Digest
	}
	c.pending.block.ActionMerkleRoot = merkle.Root(actionLeaves)

	trxLeaves := make([][32]byte, len(c.pending.block.Block.Transactions))
	for i, t := range c.pending.block.Block.Transactions {
		trxLeaves[i] = sha256.Sum256(t.PackedTrx)
	}
	c.pending.block.TrxMerkleRoot = merkle.Root(trxLeaves)

	id := blockIDFromDigest(c.pending.block.BlockNum, c.headerDigest(&c.pending.block.BlockHeaderState))
	c.pending.block.ID = id
	c.pending.block.Block.ID = id
	return nil
}

// SignBlock signs the pending block's id, matching controller.cpp's
// sign_block.
func (c *Controller) SignBlock() error {
	if c.pending == nil {
		return model.ErrConsistency.WithCause(errf("sign_block called with no pending block"))
	}
	sig, err := c.signer.Sign(c.pending.block.ID)
	if err != nil {
		return errf("sign_block: %s", err)
	}
	c.pending.block.Block.ProducerSignature = sig
	return nil
}

func (c *Controller) headerDigest(h *model.BlockHeaderState) [32]byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, h.Previous[:]...)
	buf = append(buf, h.ActionMerkleRoot[:]...)
	buf = append(buf, h.TrxMerkleRoot[:]...)
	ts, _ := h.Timestamp.MarshalBinary()
	buf = append(buf, ts...)
	buf = append(buf, []byte(h.Producer)...)
	return sha256.Sum256(buf)
}

// blockIDFromDigest packs blockNum into the id's high 32 bits, matching
// BlockID.Num()'s decode and spec.md's "high 32 bits encode the block
// number" data model rule.
func blockIDFromDigest(num model.BlockNum, digest [32]byte) model.BlockID {
	var id model.BlockID
	binary.BigEndian.PutUint32(id[:4], uint32(num))
	copy(id[4:], digest[4:])
	return id
}

// CommitBlock finalizes the pending block into both stores and,
// optionally, the fork database, matching controller.cpp's
// commit_block(add_to_fork_db). The state-DB session is pushed as a
// persistent checkpoint (poppable by a future pop_block/reorg); the
// token-DB savepoint is accepted in place for the same reason.
func (c *Controller) CommitBlock(addToForkDB bool) (*model.BlockState, error) {
	if c.pending == nil {
		return nil, model.ErrConsistency.WithCause(errf("commit_block called with no pending block"))
	}
	p := c.pending
	c.pending = nil

	// The block's header fields are built up on BlockState directly
	// (start_block seeds them, finalize_block/sign_block fill in the
	// merkle roots, id and signature); sync them into the embedded copy
	// on Block before it is handed to the fork db or the block log.
	p.block.Block.BlockHeaderState = p.block.BlockHeaderState

	p.stateSession.Push()
	p.tokenSavepoint.Accept()
	p.block.Validated = true

	c.recordBlockSummary(p.block.BlockNum, p.block.ID)

	if addToForkDB {
		bs, err := c.forkDB.Add(p.block.Block, true)
		if err != nil {
			return nil, err
		}
		c.appliedHead = bs.ID
		c.promoteIrreversible()
		return bs, nil
	}
	c.appliedHead = p.block.ID
	c.promoteIrreversible()
	return p.block, nil
}

// promoteIrreversible tells the fork db to fire its irreversible handler
// up through its current head's LastIrreversible(), but only once
// appliedHead actually matches that head: a handler fired any earlier
// could commit/block-log a block the stores haven't replayed yet (see
// the ForkDB interface's PromoteIrreversible doc).
func (c *Controller) promoteIrreversible() {
	if head := c.forkDB.Head(); head != nil && head.ID == c.appliedHead {
		c.forkDB.PromoteIrreversible()
	}
}

// AbortBlock discards the currently pending block, matching
// controller.cpp's abort_block: every transaction already included in
// the pending block is moved back into the unapplied set so it can be
// retried in a later block, then both the state-DB checkpoint and the
// token-DB savepoint opened by start_block are rolled back in full.
func (c *Controller) AbortBlock() {
	if c.pending == nil {
		return
	}
	c.restoreToUnapplied(c.pending.block.Trxs)
	c.pending.stateSession.Undo()
	c.tokenDB.RollbackToLatestSavepoint()
	c.pending = nil
}

// restoreToUnapplied re-inserts each transaction into the unapplied set,
// matching controller.cpp's "for each t in trxs: unapplied_transactions[t->signed_id] = t"
// idiom used by both abort_block and pop_block.
func (c *Controller) restoreToUnapplied(trxs []*model.TransactionMetadata) {
	for _, meta := range trxs {
		c.unapplied[meta.SignedID] = meta
	}
}

// SetProposedProducers stages a new producer schedule proposal,
// matching controller.cpp's set_proposed_producers rejection rules
// (exactly one outstanding proposal, and it must differ from active).
func (c *Controller) SetProposedProducers(schedule model.ProducerSchedule) error {
	return c.proposeSchedule(schedule)
}
