package model

// AuthChecker evaluates whether a candidate key set satisfies an action's
// required authority, consulting the token DB for authority/group
// resolution, and accumulates the minimal "used" subset.
type AuthChecker interface {
	Satisfied(action Action) bool
	UsedKeys() []PublicKey
}

// ApplyContext is the surface a registered apply handler sees: read
// access to both stores, write access through the pending sessions, the
// action/transaction being executed, and the receipts accumulator.
type ApplyContext interface {
	StateDB() StateDB
	TokenDB() TokenDB
	Action() Action
	Transaction() *Transaction
	AddReceipt(ActionReceipt)
}

// ApplyHandler performs one action's effect on the stores inside the
// pending sessions. It returns a ChainError-wrapped failure on any
// deterministic rule violation.
type ApplyHandler func(ApplyContext) error
