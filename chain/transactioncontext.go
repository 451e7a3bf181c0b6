package chain

import (
	"github.com/tokenchain/tokend/chain/auth"
	"github.com/tokenchain/tokend/chain/contracts"
	"github.com/tokenchain/tokend/chain/model"
)

// applyTransaction runs every action of trx against the pending state's
// stores, inside an already-open state-DB session and token-DB
// savepoint (the caller owns those scopes). It returns the receipts
// produced, or the first error encountered — the caller is responsible
// for rolling the session/savepoint back on failure, matching
// controller.cpp's push_transaction structuring of trx execution as a
// sub-step of the larger restore-point-guarded push.
func (c *Controller) applyTransaction(meta *model.TransactionMetadata) ([]model.ActionReceipt, error) {
	trx := meta.Trx
	keys, err := meta.RecoverKeys()
	if err != nil {
		return nil, model.ErrTxMissingSigs.WithCause(err)
	}

	checker := auth.NewChecker(c.tokenDB, keys)
	var receipts []model.ActionReceipt

	for _, action := range trx.Actions {
		if !checker.Satisfied(action) {
			return nil, model.ErrTxMissingSigs.WithCause(errf(
				"action %q on %s/%s is not authorized by the provided signatures",
				action.Name, action.Domain, action.Key))
		}

		handler, ok := c.handlers.Lookup(action.Name)
		if !ok {
			return nil, model.ErrHandlerFailed.WithCause(errf("no handler registered for action %q", action.Name))
		}

		actionReceipts := &receipts
		ctx := contracts.NewContext(c.stateDB, c.tokenDB, action, trx, actionReceipts)
		if err := handler(ctx); err != nil {
			return nil, err
		}
	}

	return receipts, nil
}
