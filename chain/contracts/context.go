// Package contracts implements the apply-handler registry and the nine
// built-in handlers from spec §6: newdomain, issuetoken, transfer,
// newgroup, updategroup, updatedomain, newaccount, updateowner,
// transferevt. Grounded on controller.cpp's apply_context and the
// constructor's set_apply_handler wiring.
package contracts

import (
	"github.com/tokenchain/tokend/chain/model"
)

// Context is the concrete model.ApplyContext the controller constructs
// once per action dispatch.
type Context struct {
	state model.StateDB
	token model.TokenDB
	act   model.Action
	trx   *model.Transaction

	receipts *[]model.ActionReceipt
}

// NewContext builds an ApplyContext over the given stores for one action
// within trx, appending receipts to the caller-owned slice pointer.
func NewContext(state model.StateDB, token model.TokenDB, act model.Action, trx *model.Transaction, receipts *[]model.ActionReceipt) *Context {
	return &Context{state: state, token: token, act: act, trx: trx, receipts: receipts}
}

func (c *Context) StateDB() model.StateDB          { return c.state }
func (c *Context) TokenDB() model.TokenDB          { return c.token }
func (c *Context) Action() model.Action            { return c.act }
func (c *Context) Transaction() *model.Transaction { return c.trx }

func (c *Context) AddReceipt(r model.ActionReceipt) {
	*c.receipts = append(*c.receipts, r)
}

var _ model.ApplyContext = (*Context)(nil)

// Registry is the name -> handler dispatch table built by
// DefaultHandlers and consulted once per action in a transaction.
type Registry map[string]model.ApplyHandler

// Lookup returns the handler for name, or nil, ok=false if none is
// registered (an unknown action name is an objective transaction
// failure at the controller level, not this package's concern).
func (r Registry) Lookup(name string) (model.ApplyHandler, bool) {
	h, ok := r[name]
	return h, ok
}
