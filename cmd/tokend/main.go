// Command tokend runs the DPoS chain controller: opens the state DB,
// token DB and block log, establishes or resumes genesis, replays any
// blocks already in the log, logs the resulting head, and exits (a
// producer loop and a network transport are out of scope for this
// module, matching spec.md's Non-goals around BFT networking and
// scheduling fairness).
package main

import (
	"encoding/hex"
	"os"

	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
	"github.com/tokenchain/tokend/chain"
	"github.com/tokenchain/tokend/chain/blocklog"
	"github.com/tokenchain/tokend/chain/forkdb"
	"github.com/tokenchain/tokend/chain/model"
	"github.com/tokenchain/tokend/chain/statedb"
	"github.com/tokenchain/tokend/chain/tokendb"
	"github.com/tokenchain/tokend/infrastructure/logger"
)

var log = logger.RegisterSubSystem("TKND")

func main() {
	if err := run(); err != nil {
		log.Criticalf("tokend: %s", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sdb, err := statedb.Open(cfg.SharedMemoryDir)
	if err != nil {
		return errors.Wrap(err, "opening state DB")
	}
	defer sdb.Close()

	tdb := tokendb.New()
	fdb := forkdb.New()

	blog, err := blocklog.Open(cfg.BlockLogDir)
	if err != nil {
		return errors.Wrap(err, "opening block log")
	}
	defer blog.Close()

	signer, err := newEphemeralSigner()
	if err != nil {
		return errors.Wrap(err, "creating block signer")
	}

	ctrl := chain.New(sdb, tdb, blog, fdb, signer, cfg.genesis().Configuration)

	if err := ctrl.Bootstrap(cfg.genesis()); err != nil {
		return errors.Wrap(err, "bootstrapping genesis")
	}

	if err := ctrl.Replay(decodeUnsignedTransaction); err != nil {
		return errors.Wrap(err, "replaying block log")
	}

	head := ctrl.Head()
	log.Infof("tokend ready: head block %d (%s)", head.BlockNum, head.ID)
	return nil
}

// ephemeralSigner is a throwaway secp256k1 Schnorr keypair generated at
// process start, grounded on go-secp256k1's GenerateSchnorrKeyPair/SchnorrSign
// pair (cmd/wallet/create.go, domain/consensus/utils/txscript/sign.go in
// the kaspad example). A production deployment wires a persistent key
// store here instead; key custody is an explicit external-collaborator
// boundary per spec.md's scope note on Signer/KeyRecoverer.
type ephemeralSigner struct {
	priv *secp256k1.SchnorrKeyPair
}

func newEphemeralSigner() (*ephemeralSigner, error) {
	priv, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		return nil, err
	}
	return &ephemeralSigner{priv: priv}, nil
}

func (s *ephemeralSigner) Sign(digest [32]byte) ([]byte, error) {
	hash := secp256k1.Hash(digest)
	sig, err := s.priv.SchnorrSign(&hash)
	if err != nil {
		return nil, err
	}
	return sig.Serialize()[:], nil
}

// decodeUnsignedTransaction is a placeholder transaction decoder for
// replay: tokend carries no wire codec of its own (see SPEC_FULL.md
// §1's scope note on the ABI wire format), so blocks replayed from an
// empty log never reach this path in practice. A deployment with a real
// codec replaces this with one that also installs each transaction's
// key recoverer via SetKeyRecoverer.
func decodeUnsignedTransaction(packed []byte) (*model.TransactionMetadata, error) {
	return nil, errors.Errorf("decodeUnsignedTransaction: no wire codec configured (packed len=%d, hex=%s)",
		len(packed), hex.EncodeToString(packed[:minInt(len(packed), 8)]))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var _ model.Signer = (*ephemeralSigner)(nil)
