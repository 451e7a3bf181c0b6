package chain

import "github.com/tokenchain/tokend/chain/model"

// ApplyBlock replays bs's already-decoded transactions against the
// stores, mutating bs in place (it is the same *BlockState the fork db
// tracks, so callers never hold two divergent views of one block),
// matching controller.cpp's apply_block. trust=true (replay of a block
// already proven, or one local code just produced) still runs every
// action handler to rebuild state, but skips re-validating
// expiration/TaPoS (already checked the first time this block was
// pushed).
func (c *Controller) ApplyBlock(bs *model.BlockState, trxs []*model.TransactionMetadata, trust bool) error {
	if c.pending != nil {
		return model.ErrConsistency.WithCause(errf("apply_block called while a block is already pending"))
	}

	bs.Trxs = trxs

	stateSession := c.stateDB.StartSession(false)
	tokenSavepoint := c.tokenDB.NewSavepointSession(bs.BlockNum)

	for _, meta := range trxs {
		if !trust {
			if err := c.ValidateExpiration(meta.Trx, bs.Timestamp); err != nil {
				stateSession.Undo()
				c.tokenDB.RollbackToLatestSavepoint()
				return err
			}
			if err := c.ValidateTapos(meta.Trx); err != nil {
				stateSession.Undo()
				c.tokenDB.RollbackToLatestSavepoint()
				return err
			}
		}

		txSession := c.stateDB.StartSession(true)
		txSavepoint := c.tokenDB.NewSavepointSession(bs.BlockNum)

		if _, err := c.applyTransaction(meta); err != nil {
			txSession.Undo()
			c.tokenDB.RollbackToLatestSavepoint()
			stateSession.Undo()
			c.tokenDB.RollbackToLatestSavepoint()
			return err
		}
		txSession.Push()
		txSavepoint.Accept()
	}

	stateSession.Push()
	tokenSavepoint.Accept()
	bs.Validated = true
	c.recordBlockSummary(bs.BlockNum, bs.ID)
	c.appliedHead = bs.ID
	return nil
}

// PushBlock accepts a block from the network or from replay, matching
// controller.cpp's push_block: a block linking directly onto the
// currently-applied head is applied in place; anything else is
// registered with the fork db as a candidate and reconciled by
// maybe_switch_forks.
func (c *Controller) PushBlock(block *model.SignedBlock, trxs []*model.TransactionMetadata, trust bool) (*model.BlockState, error) {
	if existing, ok := c.forkDB.GetBlock(block.ID); ok {
		return existing, nil
	}

	bs, err := c.forkDB.Add(block, trust)
	if err != nil {
		return nil, err
	}

	if block.Previous == c.appliedHead {
		if err := c.ApplyBlock(bs, trxs, trust); err != nil {
			c.forkDB.SetValidity(bs, false)
			return nil, err
		}
	} else {
		bs.Trxs = trxs
	}

	if err := c.maybeSwitchForks(); err != nil {
		return nil, err
	}
	c.promoteIrreversible()
	return bs, nil
}

// maybeSwitchForks reconciles the applied stores with the fork db's
// current head, matching controller.cpp's maybe_switch_forks: if they
// already agree, nothing to do; otherwise the old branch is unwound
// (stateDB.Undo / tokenDB.RollbackToLatestSavepoint per block) and the
// new branch is replayed from its lowest common ancestor with the old
// head. A failure partway through the new branch re-applies the old
// branch and reports the error — the controller never ends up on a
// branch it could not fully validate.
func (c *Controller) maybeSwitchForks() error {
	newHead := c.forkDB.Head()
	if newHead == nil || newHead.ID == c.appliedHead {
		return nil
	}

	oldBranch, newBranch, err := c.forkDB.FetchBranchFrom(c.appliedHead, newHead.ID)
	if err != nil {
		return err
	}

	// Unwinding the old branch is pop_block applied per block: restore
	// each block's transactions to unapplied before undoing its session.
	for _, old := range oldBranch {
		c.restoreToUnapplied(old.Trxs)
		c.stateDB.Undo()
		c.tokenDB.RollbackToLatestSavepoint()
	}
	if len(oldBranch) > 0 {
		c.appliedHead = oldBranch[len(oldBranch)-1].Previous
	}

	// newBranch is ordered tip -> ancestor; replay oldest-first.
	for i := len(newBranch) - 1; i >= 0; i-- {
		candidate := newBranch[i]
		if err := c.ApplyBlock(candidate, candidate.Trxs, true); err != nil {
			c.forkDB.SetValidity(candidate, false)
			log.Errorf("maybe_switch_forks: new branch block %d (%s) failed to apply: %s",
				candidate.BlockNum, candidate.ID, err)

			for j := i + 1; j < len(newBranch); j++ {
				c.stateDB.Undo()
				c.tokenDB.RollbackToLatestSavepoint()
			}
			for k := len(oldBranch) - 1; k >= 0; k-- {
				if rerr := c.ApplyBlock(oldBranch[k], oldBranch[k].Trxs, true); rerr != nil {
					// oldBranch already applied cleanly once; re-applying it
					// identically must succeed, same assumption blockdag.go's
					// FC_ASSERT-style checks make about desync during a
					// reorg unwind.
					panic(model.ErrConsistency.WithCause(rerr))
				}
			}
			return err
		}
	}

	return nil
}

// PopBlock discards the currently-applied head block, restoring its
// transactions to the unapplied set and unwinding its state-DB
// checkpoint and token-DB savepoint, matching controller.cpp's
// pop_block. Used when the current head turns out to be invalid, or as
// a building block of a reorg.
func (c *Controller) PopBlock() error {
	head, ok := c.forkDB.GetBlock(c.appliedHead)
	if !ok {
		return model.ErrUnknownBlock.WithCause(errf("pop_block: applied head %s not found in fork db", c.appliedHead))
	}
	c.restoreToUnapplied(head.Trxs)
	c.stateDB.Undo()
	c.tokenDB.RollbackToLatestSavepoint()
	c.forkDB.SetValidity(head, false)
	c.appliedHead = head.Previous
	return nil
}

// onIrreversible is installed as the fork db's irreversible handler: it
// appends the block to the durable log and permanently commits both
// stores up to it, matching controller.cpp's on_irreversible. Per
// spec.md's design notes, this is the SOLE path blocks become durable —
// no separate periodic log-walk routine is implemented.
func (c *Controller) onIrreversible(bs *model.BlockState) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("on_irreversible observer panic swallowed: %v", r)
		}
	}()

	if c.replaying {
		// The block log is replay's own source; writing it back out
		// would be redundant (and Append's previous-link check would
		// reject the re-append of a block already at the head).
	} else if head, ok := c.blockLog.Head(); ok && bs.BlockNum <= head.BlockNum {
		return
	} else if err := c.blockLog.Append(bs.Block); err != nil {
		log.Criticalf("on_irreversible: failed to append block %d to block log: %s", bs.BlockNum, err)
		return
	}
	c.stateDB.Commit(bs.BlockNum)
	c.tokenDB.PopSavepoints(bs.BlockNum)
	log.Infof("block %d (%s) is now irreversible", bs.BlockNum, bs.ID)
}
