package blocklog

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/tokenchain/tokend/chain/model"
)

func tempBlockLog(t *testing.T) (*BlockLog, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "blocklog_test")
	if err != nil {
		t.Fatalf("TempDir: %s", err)
	}
	bl, err := Open(dir)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("Open: %s", err)
	}
	return bl, func() {
		bl.Close()
		os.RemoveAll(dir)
	}
}

func blockWithID(num model.BlockNum, id, previous model.BlockID) *model.SignedBlock {
	return &model.SignedBlock{
		BlockHeaderState: model.BlockHeaderState{
			BlockNum: num,
			ID:       id,
			Previous: previous,
		},
	}
}

func TestAppendAndReadBack(t *testing.T) {
	bl, cleanup := tempBlockLog(t)
	defer cleanup()

	genesis := blockWithID(1, model.BlockID{1}, model.BlockID{})
	if err := bl.Append(genesis); err != nil {
		t.Fatalf("Append genesis: %s", err)
	}

	second := blockWithID(2, model.BlockID{2}, model.BlockID{1})
	if err := bl.Append(second); err != nil {
		t.Fatalf("Append second: %s", err)
	}

	head, ok := bl.Head()
	if !ok || head.BlockNum != 2 {
		t.Fatalf("expected head at block 2, got %+v ok=%v", head, ok)
	}

	got, ok := bl.ReadBlockByNum(1)
	if !ok || got.ID != genesis.ID {
		t.Fatalf("expected to read genesis back, got %+v ok=%v", got, ok)
	}
}

func TestAppendRejectsBrokenChain(t *testing.T) {
	bl, cleanup := tempBlockLog(t)
	defer cleanup()

	genesis := blockWithID(1, model.BlockID{1}, model.BlockID{})
	if err := bl.Append(genesis); err != nil {
		t.Fatalf("Append genesis: %s", err)
	}

	broken := blockWithID(2, model.BlockID{2}, model.BlockID{99})
	if err := bl.Append(broken); err == nil {
		t.Fatalf("expected Append to reject a block whose previous does not match head")
	}
}

func TestReadBlockByNumMissing(t *testing.T) {
	bl, cleanup := tempBlockLog(t)
	defer cleanup()

	if _, ok := bl.ReadBlockByNum(42); ok {
		t.Fatalf("expected ReadBlockByNum to report absence for an empty log")
	}
}
