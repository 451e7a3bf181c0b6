package chain

import "github.com/tokenchain/tokend/chain/model"

// proposeSchedule records a new pending schedule on the head block state
// and the global property object, rejecting a second proposal while one
// is still pending — set_proposed_producers' exact rejection rule from
// controller.cpp.
func (c *Controller) proposeSchedule(schedule model.ProducerSchedule) error {
	head := c.forkDB.Head()
	if head == nil {
		return model.ErrConsistency.WithCause(errf("propose schedule: no head block"))
	}
	if !head.PendingSchedule.IsEmpty() {
		return model.ErrConsistency.WithCause(errf(
			"cannot propose a new producer schedule while one is already pending"))
	}
	if schedule.Equal(head.ActiveSchedule) {
		return model.ErrConsistency.WithCause(errf(
			"proposed schedule is identical to the active schedule"))
	}

	head.PendingSchedule = schedule
	c.globalProperty.ProposedSchedule = schedule
	c.globalProperty.ProposedScheduleBlockNum = head.BlockNum
	c.globalProperty.HasProposal = true
	log.Infof("proposed producer schedule version %d at block %d", schedule.Version, head.BlockNum)
	return nil
}

// maybePromotePendingSchedule promotes bs's pending schedule to active
// once irreversibility has caught up to the block the proposal was made
// at, matching BlockState.MaybePromotePending / controller.cpp's
// promote logic in start_block.
func (c *Controller) maybePromotePendingSchedule(bs *model.BlockState) {
	if !c.globalProperty.HasProposal {
		return
	}
	if bs.MaybePromotePending(c.globalProperty.ProposedScheduleBlockNum) {
		c.globalProperty.HasProposal = false
		c.globalProperty.ProposedSchedule = model.ProducerSchedule{}
		log.Infof("promoted pending producer schedule to active at block %d", bs.BlockNum)
	}
}

// recordBlockSummary stashes id into the fixed 65536-slot ring keyed by
// block_num & 0xffff, used by validate_tapos to resolve a short
// reference block number back to a full id.
func (c *Controller) recordBlockSummary(num model.BlockNum, id model.BlockID) {
	c.blockSummary[uint16(num)&0xffff] = id
}

func (c *Controller) blockSummaryAt(num model.BlockNum) model.BlockID {
	return c.blockSummary[uint16(num)&0xffff]
}
