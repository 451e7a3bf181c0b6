package contracts

import (
	"testing"

	"github.com/tokenchain/tokend/chain/model"
	"github.com/tokenchain/tokend/chain/statedb"
	"github.com/tokenchain/tokend/chain/tokendb"
)

func newTestContext(t *testing.T, tdb *tokendb.TokenDB, act model.Action) (*Context, *[]model.ActionReceipt) {
	t.Helper()
	sdb, err := statedb.Open("")
	if err != nil {
		t.Fatalf("statedb.Open: %s", err)
	}
	receipts := &[]model.ActionReceipt{}
	return NewContext(sdb, tdb, act, &model.Transaction{}, receipts), receipts
}

func TestNewDomainThenDuplicateFails(t *testing.T) {
	tdb := tokendb.New()
	handlers := DefaultHandlers()

	ctx, receipts := newTestContext(t, tdb, model.Action{Name: "newdomain", Domain: "evt"})
	h, ok := handlers.Lookup("newdomain")
	if !ok {
		t.Fatalf("expected newdomain handler to be registered")
	}
	if err := h(ctx); err != nil {
		t.Fatalf("newDomain: %s", err)
	}
	if len(*receipts) != 1 {
		t.Fatalf("expected one receipt, got %d", len(*receipts))
	}

	ctx2, _ := newTestContext(t, tdb, model.Action{Name: "newdomain", Domain: "evt"})
	if err := h(ctx2); err == nil {
		t.Fatalf("expected duplicate newdomain to fail")
	}
}

func TestIssueTokenRequiresExistingDomain(t *testing.T) {
	tdb := tokendb.New()
	handlers := DefaultHandlers()
	issue, _ := handlers.Lookup("issuetoken")

	ctx, _ := newTestContext(t, tdb, model.Action{Name: "issuetoken", Domain: "evt", Key: "t1"})
	if err := issue(ctx); err == nil {
		t.Fatalf("expected issuetoken to fail without an existing domain")
	}

	tdb.PutDomain(&model.Domain{Name: "evt"})
	ctx2, receipts := newTestContext(t, tdb, model.Action{Name: "issuetoken", Domain: "evt", Key: "t1"})
	if err := issue(ctx2); err != nil {
		t.Fatalf("issueToken: %s", err)
	}
	if len(*receipts) != 1 {
		t.Fatalf("expected one receipt for issuetoken")
	}
}

func TestTransferRequiresExistingToken(t *testing.T) {
	tdb := tokendb.New()
	handlers := DefaultHandlers()
	transferH, _ := handlers.Lookup("transfer")

	ctx, _ := newTestContext(t, tdb, model.Action{Name: "transfer", Domain: "evt", Key: "t1", Data: []byte("bob-key")})
	if err := transferH(ctx); err == nil {
		t.Fatalf("expected transfer to fail without an existing token")
	}

	tdb.PutToken(&model.Token{Domain: "evt", Name: "t1"})
	ctx2, _ := newTestContext(t, tdb, model.Action{Name: "transfer", Domain: "evt", Key: "t1", Data: []byte("bob-key")})
	if err := transferH(ctx2); err != nil {
		t.Fatalf("transfer: %s", err)
	}

	found := tdb.ReadToken("evt", "t1", func(tok *model.Token) {
		if len(tok.Owner.Keys) != 1 || tok.Owner.Keys[0].Key != "bob-key" {
			t.Fatalf("expected owner to be updated to bob-key, got %+v", tok.Owner)
		}
	})
	if !found {
		t.Fatalf("expected token to still exist after transfer")
	}
}

func TestNewAccountThenUpdateOwner(t *testing.T) {
	tdb := tokendb.New()
	handlers := DefaultHandlers()
	newAcct, _ := handlers.Lookup("newaccount")
	updOwner, _ := handlers.Lookup("updateowner")

	ctx, _ := newTestContext(t, tdb, model.Action{Name: "newaccount", Key: "alice"})
	if err := newAcct(ctx); err != nil {
		t.Fatalf("newAccount: %s", err)
	}

	ctx2, _ := newTestContext(t, tdb, model.Action{Name: "updateowner", Key: "alice", Data: []byte("alice-key-2")})
	if err := updOwner(ctx2); err != nil {
		t.Fatalf("updateOwner: %s", err)
	}

	found := tdb.ReadAccount("alice", func(acc *model.Account) {
		if len(acc.Owner.Keys) != 1 || acc.Owner.Keys[0].Key != "alice-key-2" {
			t.Fatalf("expected owner key to be updated, got %+v", acc.Owner)
		}
	})
	if !found {
		t.Fatalf("expected account alice to exist")
	}
}
