package chain

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/tokenchain/tokend/chain/model"
	"github.com/tokenchain/tokend/infrastructure/logger"
)

const globalPropertyTable = "global_property"

// GenesisConfig is the minimal input startup needs to construct the
// genesis block header state: the genesis key, its timestamp, and the
// initial chain configuration, matching spec.md §6's genesis tuple.
type GenesisConfig struct {
	InitialKey       model.PublicKey
	InitialTimestamp time.Time
	Configuration    model.ChainConfiguration
}

// chainIDHash derives the genesis block's action_mroot from the genesis
// config, matching spec.md §4.8's "action_mroot = chain_id_hash(genesis_config)".
// Uses blake2b rather than sha256, the same hash util.HashBlake2b reaches
// for on address/identity material as opposed to merkle/transaction hashing.
func chainIDHash(g GenesisConfig) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, []byte(g.InitialKey)...)
	ts, _ := g.InitialTimestamp.MarshalBinary()
	buf = append(buf, ts...)
	return blake2b.Sum256(buf)
}

// Bootstrap registers the state-DB indices the controller relies on and,
// if the fork db has no head yet, establishes genesis: an initial
// producer schedule containing the genesis key, the 65536-slot block
// summary ring's first entry, and the global property object seeded
// from genesis.Configuration. Matches controller.cpp's startup sequence
// (spec.md §4.8). Call once, before StartBlock/PushBlock/Replay.
func (c *Controller) Bootstrap(genesis GenesisConfig) error {
	c.stateDB.RegisterIndex(globalPropertyTable)

	if head := c.forkDB.Head(); head != nil {
		c.appliedHead = head.ID
		return nil
	}

	mroot := chainIDHash(genesis)
	var id model.BlockID
	binary.BigEndian.PutUint32(id[:4], 1)
	copy(id[4:], mroot[4:])

	bs := &model.BlockState{
		BlockHeaderState: model.BlockHeaderState{
			BlockNum:         1,
			ID:               id,
			Timestamp:        genesis.InitialTimestamp,
			ActionMerkleRoot: mroot,
			ActiveSchedule: model.ProducerSchedule{
				Version:   1,
				Producers: []model.ProducerScheduleProducer{{Name: "genesis", SigningKey: []byte(genesis.InitialKey)}},
			},
		},
		Block: &model.SignedBlock{},
	}
	bs.Block.BlockHeaderState = bs.BlockHeaderState

	c.forkDB.SetGenesis(bs)
	// Genesis gets no checkpoint session, so start the state DB's
	// revision at block 1: the first Commit then retires exactly the
	// checkpoints of the blocks after genesis.
	c.stateDB.Commit(1)
	c.recordBlockSummary(1, id)
	c.appliedHead = id
	c.conf = genesis.Configuration
	c.globalProperty.Configuration = genesis.Configuration

	log.Infof("genesis block %s established at %s", id, genesis.InitialTimestamp)
	return nil
}

// Replay feeds every block already in the block log beyond genesis
// through push_block(trust=true), matching spec.md §4.8's replay mode.
// decodeTrx reconstructs a TransactionMetadata (including its key
// recoverer) from one transaction receipt's packed bytes; chain itself
// carries no wire codec, the same external-collaborator boundary
// model.Signer/KeyRecoverer draw for signing. While replaying, blocks
// crossing irreversibility are not re-appended to the block log — they
// are its source.
func (c *Controller) Replay(decodeTrx func(packed []byte) (*model.TransactionMetadata, error)) error {
	c.replaying = true
	defer func() { c.replaying = false }()
	defer logger.LogAndMeasureExecutionTime(log, "chain.Replay")()

	for num := model.BlockNum(2); ; num++ {
		block, ok := c.blockLog.ReadBlockByNum(num)
		if !ok {
			break
		}
		trxs := make([]*model.TransactionMetadata, 0, len(block.Transactions))
		for _, r := range block.Transactions {
			meta, err := decodeTrx(r.PackedTrx)
			if err != nil {
				return errf("replay: block %d: decode transaction: %s", num, err)
			}
			trxs = append(trxs, meta)
		}
		if _, err := c.PushBlock(block, trxs, true); err != nil {
			return errf("replay: block %d: %s", num, err)
		}
		log.Debugf("replayed block %d (%s)", num, block.ID)
	}
	return nil
}
