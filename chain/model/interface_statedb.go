package model

// StateDB is the undo-capable key/value store for general chain state.
// The controller registers its global-property table here at startup;
// the block summary ring and the global property object themselves are
// held in Controller fields. Sessions nest: a child session's writes are
// either pushed (see StateDBSession.Push) or undone in full.
type StateDB interface {
	// Revision returns the block number passed to the most recent
	// Commit (0 before any Commit); opening or pushing a session does
	// not change it.
	Revision() BlockNum

	// StartSession opens a new nested undo session on top of the current
	// state. tracked=true opens an ephemeral, squash-on-Push session (a
	// transaction within a block); tracked=false opens a persistent
	// checkpoint session (a block) that survives its own Push and stays
	// independently poppable by a later Undo, however many blocks back.
	StartSession(tracked bool) StateDBSession

	// Undo reverts the most recently pushed, not-yet-committed session.
	Undo()

	// Commit permanently flushes all state up to and including blockNum,
	// freeing the undo history before it.
	Commit(blockNum BlockNum)

	// Get/Put/Delete operate on the currently open session, or directly
	// on committed state if no session is open.
	Get(table, key string) ([]byte, bool)
	Put(table, key string, value []byte)
	Delete(table, key string)

	// RegisterIndex idempotently declares a named table; calling it twice
	// with the same name is a no-op.
	RegisterIndex(table string)
}

// StateDBSession is one nested undo scope.
type StateDBSession interface {
	// Push seals this session. A tracked session folds its undo log into
	// its parent (with no parent, its writes simply become permanent) and
	// leaves the stack; an untracked checkpoint stays on the stack and can
	// still be reverted by StateDB.Undo until Commit retires it.
	Push()
	// Undo restores every key this session touched to its pre-image and
	// removes it from the stack.
	Undo()
	// Done reports whether Push or Undo has already been called.
	Done() bool
}
