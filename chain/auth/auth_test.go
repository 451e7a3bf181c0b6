package auth

import (
	"testing"

	"github.com/tokenchain/tokend/chain/model"
	"github.com/tokenchain/tokend/chain/tokendb"
)

func TestSatisfiedByDirectKey(t *testing.T) {
	db := tokendb.New()
	db.PutDomain(&model.Domain{
		Name:   "evt",
		Manage: model.Authority{Keys: []model.GroupKey{{Key: "alice-key", Weight: 1}}},
	})

	c := NewChecker(db, []model.PublicKey{"alice-key"})
	ok := c.Satisfied(model.Action{Name: "updatedomain", Domain: "evt"})
	if !ok {
		t.Fatalf("expected direct key to satisfy authority")
	}
	if len(c.UsedKeys()) != 1 || c.UsedKeys()[0] != "alice-key" {
		t.Fatalf("expected used keys to contain alice-key, got %v", c.UsedKeys())
	}
}

func TestSatisfiedThroughGroup(t *testing.T) {
	db := tokendb.New()
	db.PutGroup(&model.Group{
		ID:   "g1",
		Keys: []model.GroupKey{{Key: "bob-key", Weight: 1}},
	})
	db.PutDomain(&model.Domain{
		Name:   "evt",
		Manage: model.Authority{GroupRef: "g1"},
	})

	c := NewChecker(db, []model.PublicKey{"bob-key"})
	if !c.Satisfied(model.Action{Name: "updatedomain", Domain: "evt"}) {
		t.Fatalf("expected key inside referenced group to satisfy authority")
	}
}

func TestSatisfiedThroughNestedGroup(t *testing.T) {
	db := tokendb.New()
	db.PutGroup(&model.Group{
		ID:   "inner",
		Keys: []model.GroupKey{{Key: "carol-key", Weight: 1}},
	})
	db.PutGroup(&model.Group{
		ID:   "outer",
		Keys: []model.GroupKey{{GroupRef: "inner", Weight: 1}},
	})
	db.PutDomain(&model.Domain{
		Name:   "evt",
		Manage: model.Authority{GroupRef: "outer"},
	})

	c := NewChecker(db, []model.PublicKey{"carol-key"})
	if !c.Satisfied(model.Action{Name: "updatedomain", Domain: "evt"}) {
		t.Fatalf("expected nested group resolution to succeed")
	}
}

func TestUnsatisfiedWithoutMatchingKey(t *testing.T) {
	db := tokendb.New()
	db.PutDomain(&model.Domain{
		Name:   "evt",
		Manage: model.Authority{Keys: []model.GroupKey{{Key: "alice-key", Weight: 1}}},
	})

	c := NewChecker(db, []model.PublicKey{"mallory-key"})
	if c.Satisfied(model.Action{Name: "updatedomain", Domain: "evt"}) {
		t.Fatalf("expected authority check to fail without the required key")
	}
	if len(c.UsedKeys()) != 0 {
		t.Fatalf("expected no used keys on failure, got %v", c.UsedKeys())
	}
}

func TestUnsatisfiedWhenNoAuthorityRecordExists(t *testing.T) {
	db := tokendb.New()
	c := NewChecker(db, []model.PublicKey{"alice-key"})
	if c.Satisfied(model.Action{Name: "transfer", Domain: "missing", Key: "missing-acct"}) {
		t.Fatalf("expected authority check to fail when no domain or account record exists")
	}
}

func TestIssueTokenConsultsDomainIssueNotManage(t *testing.T) {
	db := tokendb.New()
	db.PutDomain(&model.Domain{
		Name:   "evt",
		Issue:  model.Authority{Keys: []model.GroupKey{{Key: "alice-key", Weight: 1}}},
		Manage: model.Authority{Keys: []model.GroupKey{{Key: "mallory-key", Weight: 1}}},
	})

	c := NewChecker(db, []model.PublicKey{"alice-key"})
	if !c.Satisfied(model.Action{Name: "issuetoken", Domain: "evt", Key: "t1"}) {
		t.Fatalf("expected issue authority's key to satisfy issuetoken")
	}

	manageOnly := NewChecker(db, []model.PublicKey{"mallory-key"})
	if manageOnly.Satisfied(model.Action{Name: "issuetoken", Domain: "evt", Key: "t1"}) {
		t.Fatalf("manage authority's key must not satisfy issuetoken")
	}
}

func TestTransferOnTokenConsultsTokenOwner(t *testing.T) {
	db := tokendb.New()
	db.PutDomain(&model.Domain{
		Name:   "evt",
		Manage: model.Authority{Keys: []model.GroupKey{{Key: "mallory-key", Weight: 1}}},
	})
	db.PutToken(&model.Token{
		Domain: "evt",
		Name:   "t1",
		Owner:  model.Authority{Keys: []model.GroupKey{{Key: "alice-key", Weight: 1}}},
	})

	c := NewChecker(db, []model.PublicKey{"alice-key"})
	if !c.Satisfied(model.Action{Name: "transfer", Domain: "evt", Key: "t1"}) {
		t.Fatalf("expected token owner's key to satisfy transfer")
	}

	manageOnly := NewChecker(db, []model.PublicKey{"mallory-key"})
	if manageOnly.Satisfied(model.Action{Name: "transfer", Domain: "evt", Key: "t1"}) {
		t.Fatalf("domain manage authority must not satisfy a transfer of someone else's token")
	}
}

func TestTransferOnAccountDomainConsultsAccountOwner(t *testing.T) {
	db := tokendb.New()
	db.PutAccount(&model.Account{
		Name:  "alice",
		Owner: model.Authority{Keys: []model.GroupKey{{Key: "alice-key", Weight: 1}}},
	})

	c := NewChecker(db, []model.PublicKey{"alice-key"})
	if !c.Satisfied(model.Action{Name: "transfer", Domain: "account", Key: "alice"}) {
		t.Fatalf("expected account owner's key to satisfy a transfer on the account domain")
	}
}

func TestTransferEvtConsultsDomainTransferAuthority(t *testing.T) {
	db := tokendb.New()
	db.PutDomain(&model.Domain{
		Name:     "evt",
		Manage:   model.Authority{Keys: []model.GroupKey{{Key: "mallory-key", Weight: 1}}},
		Transfer: model.Authority{Keys: []model.GroupKey{{Key: "alice-key", Weight: 1}}},
	})
	db.PutToken(&model.Token{Domain: "evt", Name: "t1"})

	c := NewChecker(db, []model.PublicKey{"alice-key"})
	if !c.Satisfied(model.Action{Name: "transferevt", Domain: "evt", Key: "t1"}) {
		t.Fatalf("expected domain transfer authority's key to satisfy transferevt")
	}
}
