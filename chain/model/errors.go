package model

// ChainError identifies a controller-level failure kind, in the same
// shape as ruleerrors.RuleError: a fixed message plus an optional wrapped
// cause, type-assertable by callers that need to classify the failure
// (e.g. push_transaction's subjective/objective split).
type ChainError struct {
	kind    string
	message string
	inner   error
}

func (e ChainError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies errors.Unwrap.
func (e ChainError) Unwrap() error {
	return e.inner
}

// Cause satisfies github.com/pkg/errors.Cause.
func (e ChainError) Cause() error {
	return e.inner
}

// Kind returns the error-kind tag, stable across wrapping.
func (e ChainError) Kind() string {
	return e.kind
}

// WithCause returns a copy of the error wrapping the given cause.
func (e ChainError) WithCause(cause error) ChainError {
	e.inner = cause
	return e
}

func newChainError(kind, message string) ChainError {
	return ChainError{kind: kind, message: message}
}

// Error kinds from the error-handling design: tx_missing_sigs, expired_tx,
// tx_exp_too_far, invalid_ref_block, unknown_block, deadline, consistency.
// Apply-handler-reported failures use ErrHandlerFailed, carrying the
// handler's own error as its cause via WithCause.
var (
	ErrTxMissingSigs   = newChainError("tx_missing_sigs", "action authority is not satisfied by the provided keys")
	ErrExpiredTx       = newChainError("expired_tx", "transaction expiration is in the past")
	ErrTxExpTooFar     = newChainError("tx_exp_too_far", "transaction expiration is too far in the future")
	ErrInvalidRefBlock = newChainError("invalid_ref_block", "transaction TaPoS reference does not match")
	ErrUnknownBlock    = newChainError("unknown_block", "block lookup by number failed")
	ErrDeadline        = newChainError("deadline", "execution exceeded its deadline")
	ErrConsistency     = newChainError("consistency", "internal invariant violated")
	ErrHandlerFailed   = newChainError("handler", "apply handler reported a failure")
)

// IsSubjective classifies a push_transaction failure: subjective failures
// (deadline exceeded) are node-local and the transaction is kept for retry;
// everything else is objective/deterministic and the transaction is
// dropped from the unapplied set.
func IsSubjective(err error) bool {
	ce, ok := err.(ChainError)
	if !ok {
		return false
	}
	return ce.kind == ErrDeadline.kind
}
