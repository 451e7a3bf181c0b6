// Package statedb implements the undo-capable, nested-session key/value
// store described in spec §4.1. Grounded on the teacher's per-block undo
// layering: writes apply straight through to the live store, and each
// open session records the pre-image of every key it is the first to
// touch, the same "stage the original, write through, restore on undo"
// shape as domain/consensus/datastructures/utxodiffstore's Stage/Discard
// pair, generalized into a stack so popping N blocks in a row (a deep
// reorg) just walks the undo stack N times.
package statedb

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/tokenchain/tokend/chain/model"
	"github.com/tokenchain/tokend/infrastructure/logger"
)

var log = logger.RegisterSubSystem("STDB")

type undoEntry struct {
	existed bool
	value   []byte
}

// session is one nested undo scope: a layer in the stack between the
// live store and whatever is currently being built on top of it.
//
// squash distinguishes two roles the same session type plays: a
// transaction-level session (squash=true) is ephemeral — on Push it
// folds its undo log into its parent and disappears, so a committed
// transaction is indistinguishable from the block that contains it. A
// block-level session (squash=false) is a checkpoint: on Push it stays
// on the stack exactly as it is, so the block it guards remains
// independently poppable for as many blocks back as a reorg needs.
type session struct {
	db     *StateDB
	parent *session
	undo   map[string]undoEntry
	done   bool
	undone bool
	squash bool
}

func newSession(db *StateDB, parent *session, squash bool) *session {
	return &session{db: db, parent: parent, undo: make(map[string]undoEntry), squash: squash}
}

func tableKey(table, key string) string {
	return table + "\x00" + key
}

// recordUndo remembers tk's pre-image the first time this session
// overwrites it; later overwrites within the same session must not clobber
// the original pre-image.
func (s *session) recordUndo(tk string, existed bool, value []byte) {
	if _, already := s.undo[tk]; already {
		return
	}
	s.undo[tk] = undoEntry{existed: existed, value: value}
}

// Push seals this session. A squashing (transaction-level) session folds
// its undo log into its parent and leaves the stack, since once a
// transaction commits it is no longer separately poppable. A checkpoint
// (block-level) session stays exactly where it is — it remains the unit
// a later pop_block/reorg can undo on its own.
func (s *session) Push() {
	if s.done {
		return
	}
	s.done = true

	if !s.squash {
		return
	}
	if s.parent != nil {
		for tk, e := range s.undo {
			s.parent.recordUndoRaw(tk, e)
		}
	}
	s.db.popSession(s)
}

func (s *session) recordUndoRaw(tk string, e undoEntry) {
	if _, already := s.undo[tk]; already {
		return
	}
	s.undo[tk] = e
}

// Undo restores every key this session touched to its pre-image and
// removes the session from the stack. A pushed checkpoint session can
// still be undone this way; a pushed squashing session cannot, since it
// has already folded into its parent.
func (s *session) Undo() {
	if s.undone || (s.done && s.squash) {
		return
	}
	s.done = true
	s.undone = true
	s.db.popSession(s)
	for tk, e := range s.undo {
		s.db.restore(tk, e)
	}
}

func (s *session) Done() bool {
	return s.done
}

// StateDB is the controller's general-purpose store: a live index
// (leveldb, or an in-memory map if no path is configured) overlaid by a
// stack of undo layers, one per currently-uncommitted block.
type StateDB struct {
	mu       sync.Mutex
	ldb      *leveldb.DB
	live     map[string][]byte // used only when ldb == nil
	revision model.BlockNum
	stack    []*session
	indices  map[string]bool
}

// Open opens (or creates) the leveldb-backed state database at dir. If
// dir is empty, the store is purely in-memory (used by tests).
func Open(dir string) (*StateDB, error) {
	db := &StateDB{
		live:    make(map[string][]byte),
		indices: make(map[string]bool),
	}
	if dir == "" {
		return db, nil
	}
	ldb, err := leveldb.OpenFile(filepath.Clean(dir), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open state db")
	}
	db.ldb = ldb
	return db, nil
}

// Close releases the backing leveldb handle, if any.
func (db *StateDB) Close() error {
	if db.ldb == nil {
		return nil
	}
	return db.ldb.Close()
}

func (db *StateDB) popSession(s *session) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.stack) == 0 || db.stack[len(db.stack)-1] != s {
		return
	}
	db.stack = db.stack[:len(db.stack)-1]
}

func (db *StateDB) top() *session {
	if len(db.stack) == 0 {
		return nil
	}
	return db.stack[len(db.stack)-1]
}

// Revision returns the current logical revision.
func (db *StateDB) Revision() model.BlockNum {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.revision
}

// StartSession opens a new nested undo session. tracked selects its
// role: true for an ephemeral, squash-on-push transaction session; false
// for a persistent block-level checkpoint that survives its own Push and
// stays independently poppable.
func (db *StateDB) StartSession(tracked bool) model.StateDBSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := newSession(db, db.top(), tracked)
	db.stack = append(db.stack, s)
	return s
}

// Undo reverts the most recently opened session.
func (db *StateDB) Undo() {
	db.mu.Lock()
	s := db.top()
	db.mu.Unlock()
	if s == nil {
		log.Warnf("Undo called with no open session")
		return
	}
	s.Undo()
}

// Commit advances the logical revision to blockNum and permanently
// discards the oldest (blockNum - revision) checkpoint layers from the
// bottom of the stack, matching chainbase's commit(): once a block is
// irreversible nothing will ever ask to pop back past it, so its
// checkpoint's undo log can be forgotten outright. Relies on the
// controller calling Commit once per newly-committed block, in order,
// so the bottom-most layers are always exactly the ones being retired.
func (db *StateDB) Commit(blockNum model.BlockNum) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if blockNum <= db.revision {
		return
	}
	n := int(blockNum - db.revision)
	if n > len(db.stack) {
		n = len(db.stack)
	}
	db.stack = db.stack[n:]
	db.revision = blockNum
	log.Debugf("state db committed up to block %d, retired %d checkpoint layers", blockNum, n)
}

func (db *StateDB) RegisterIndex(table string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.indices[table] = true
}

func (db *StateDB) getLive(tk string) ([]byte, bool) {
	if db.ldb != nil {
		v, err := db.ldb.Get([]byte(tk), nil)
		if err != nil {
			return nil, false
		}
		return v, true
	}
	v, ok := db.live[tk]
	return v, ok
}

func (db *StateDB) putLive(tk string, value []byte) {
	if db.ldb != nil {
		if err := db.ldb.Put([]byte(tk), value, nil); err != nil {
			panic(errors.Wrap(err, "state db put failed"))
		}
		return
	}
	db.live[tk] = value
}

func (db *StateDB) deleteLive(tk string) {
	if db.ldb != nil {
		if err := db.ldb.Delete([]byte(tk), nil); err != nil {
			panic(errors.Wrap(err, "state db delete failed"))
		}
		return
	}
	delete(db.live, tk)
}

func (db *StateDB) restore(tk string, e undoEntry) {
	if !e.existed {
		db.deleteLive(tk)
		return
	}
	db.putLive(tk, e.value)
}

func (db *StateDB) Get(table, key string) ([]byte, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.getLive(tableKey(table, key))
}

func (db *StateDB) Put(table, key string, value []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tk := tableKey(table, key)
	if top := db.top(); top != nil {
		old, existed := db.getLive(tk)
		top.recordUndo(tk, existed, old)
	}
	db.putLive(tk, value)
}

func (db *StateDB) Delete(table, key string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tk := tableKey(table, key)
	if top := db.top(); top != nil {
		old, existed := db.getLive(tk)
		top.recordUndo(tk, existed, old)
	}
	db.deleteLive(tk)
}

var _ model.StateDB = (*StateDB)(nil)
