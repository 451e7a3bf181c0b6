package contracts

import (
	"crypto/sha256"

	"github.com/pkg/errors"
	"github.com/tokenchain/tokend/chain/model"
)

func digestFor(ctx model.ApplyContext) [32]byte {
	return sha256.Sum256(ctx.Action().Data)
}

func receiptFor(ctx model.ApplyContext) model.ActionReceipt {
	a := ctx.Action()
	return model.ActionReceipt{
		Name:   a.Name,
		Domain: a.Domain,
		Key:    a.Key,
		Digest: digestFor(ctx),
	}
}

func handlerFailed(action string, cause error) error {
	return model.ErrHandlerFailed.WithCause(errors.Wrapf(cause, "action %q", action))
}

// newDomain creates a domain record; fails if one already exists under
// the same name.
func newDomain(ctx model.ApplyContext) error {
	a := ctx.Action()
	if ctx.TokenDB().ReadDomain(a.Domain, func(*model.Domain) {}) {
		return handlerFailed(a.Name, errors.Errorf("domain %q already exists", a.Domain))
	}
	ctx.TokenDB().PutDomain(&model.Domain{Name: a.Domain})
	ctx.AddReceipt(receiptFor(ctx))
	return nil
}

// updateDomain replaces an existing domain's record with one carrying
// only its name, so its authority fields are reset to empty (the action
// payload is not decoded); fails if the domain does not exist. The authorization check (does the signer
// satisfy the EXISTING manage authority) happens upstream during
// push_transaction's get_required_keys pass, not here.
func updateDomain(ctx model.ApplyContext) error {
	a := ctx.Action()
	if !ctx.TokenDB().ReadDomain(a.Domain, func(*model.Domain) {}) {
		return handlerFailed(a.Name, errors.Errorf("domain %q does not exist", a.Domain))
	}
	ctx.TokenDB().PutDomain(&model.Domain{Name: a.Domain})
	ctx.AddReceipt(receiptFor(ctx))
	return nil
}

// issueToken creates a token instance within an existing domain; fails
// if the domain is unknown or the token name is already taken.
func issueToken(ctx model.ApplyContext) error {
	a := ctx.Action()
	if !ctx.TokenDB().ReadDomain(a.Domain, func(*model.Domain) {}) {
		return handlerFailed(a.Name, errors.Errorf("domain %q does not exist", a.Domain))
	}
	if ctx.TokenDB().ReadToken(a.Domain, a.Key, func(*model.Token) {}) {
		return handlerFailed(a.Name, errors.Errorf("token %s/%s already exists", a.Domain, a.Key))
	}
	ctx.TokenDB().PutToken(&model.Token{Domain: a.Domain, Name: a.Key})
	ctx.AddReceipt(receiptFor(ctx))
	return nil
}

// transfer reassigns a token's owner authority to the single key carried
// in the action payload: Action.Data is taken verbatim as the new owner's
// public key, while Action.Key names the token.
func transfer(ctx model.ApplyContext) error {
	a := ctx.Action()
	var tok model.Token
	found := ctx.TokenDB().ReadToken(a.Domain, a.Key, func(t *model.Token) { tok = *t })
	if !found {
		return handlerFailed(a.Name, errors.Errorf("token %s/%s does not exist", a.Domain, a.Key))
	}
	tok.Owner = model.Authority{Keys: []model.GroupKey{{Key: model.PublicKey(a.Data)}}}
	ctx.TokenDB().PutToken(&tok)
	ctx.AddReceipt(receiptFor(ctx))
	return nil
}

// transferEvt is the EVT-domain variant of transfer: it additionally
// requires the domain's own transfer authority (as opposed to the
// token's owner authority) to be in force, which the caller already
// resolved before dispatch — this handler only performs the mutation.
func transferEvt(ctx model.ApplyContext) error {
	return transfer(ctx)
}

// newGroup creates a named key/sub-group set; fails if the id is taken.
func newGroup(ctx model.ApplyContext) error {
	a := ctx.Action()
	if ctx.TokenDB().ReadGroup(a.Key, func(*model.Group) {}) {
		return handlerFailed(a.Name, errors.Errorf("group %q already exists", a.Key))
	}
	ctx.TokenDB().PutGroup(&model.Group{ID: a.Key})
	ctx.AddReceipt(receiptFor(ctx))
	return nil
}

// updateGroup replaces an existing group's record with one carrying only
// its id, so its key set is reset to empty (the action payload is not
// decoded); fails if the group is unknown.
func updateGroup(ctx model.ApplyContext) error {
	a := ctx.Action()
	if !ctx.TokenDB().ReadGroup(a.Key, func(*model.Group) {}) {
		return handlerFailed(a.Name, errors.Errorf("group %q does not exist", a.Key))
	}
	ctx.TokenDB().PutGroup(&model.Group{ID: a.Key})
	ctx.AddReceipt(receiptFor(ctx))
	return nil
}

// newAccount creates a named account owner record; fails if taken.
func newAccount(ctx model.ApplyContext) error {
	a := ctx.Action()
	if ctx.TokenDB().ReadAccount(a.Key, func(*model.Account) {}) {
		return handlerFailed(a.Name, errors.Errorf("account %q already exists", a.Key))
	}
	ctx.TokenDB().PutAccount(&model.Account{Name: a.Key})
	ctx.AddReceipt(receiptFor(ctx))
	return nil
}

// updateOwner replaces an account's owner authority; fails if the
// account does not exist.
func updateOwner(ctx model.ApplyContext) error {
	a := ctx.Action()
	if !ctx.TokenDB().ReadAccount(a.Key, func(*model.Account) {}) {
		return handlerFailed(a.Name, errors.Errorf("account %q does not exist", a.Key))
	}
	ctx.TokenDB().PutAccount(&model.Account{
		Name:  a.Key,
		Owner: model.Authority{Keys: []model.GroupKey{{Key: model.PublicKey(a.Data)}}},
	})
	ctx.AddReceipt(receiptFor(ctx))
	return nil
}

// DefaultHandlers returns the built-in registry wired in the same order
// controller.cpp's constructor registers them.
func DefaultHandlers() Registry {
	return Registry{
		"newdomain":    newDomain,
		"issuetoken":   issueToken,
		"transfer":     transfer,
		"newgroup":     newGroup,
		"updategroup":  updateGroup,
		"updatedomain": updateDomain,
		"newaccount":   newAccount,
		"updateowner":  updateOwner,
		"transferevt":  transferEvt,
	}
}
