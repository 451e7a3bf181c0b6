// Package tokendb implements the token-domain store described in spec
// §4.2: a savepoint-stack store, distinct from statedb's nested undo
// sessions. Grounded on the teacher's stage/commit/discard idiom
// (domain/consensus/datastructures/utxodiffstore) generalized from a
// single staged diff into a stack of undo logs, one per open block.
package tokendb

import (
	"sync"

	"github.com/tokenchain/tokend/chain/model"
	"github.com/tokenchain/tokend/infrastructure/logger"
)

var log = logger.RegisterSubSystem("TKDB")

type recordKind int

const (
	kindDomain recordKind = iota
	kindGroup
	kindAccount
	kindToken
)

type recordKey struct {
	kind recordKind
	key  string
}

// undoEntry remembers what a key held (or that it was absent) before a
// savepoint's first write to it, so RollbackToLatestSavepoint can restore it.
type undoEntry struct {
	existed bool
	value   interface{}
}

// savepoint is one entry in the stack, tagged with the block number it was
// opened for. Its undo log records only the FIRST overwrite of each key
// within its scope.
//
// A savepoint opened with the SAME block number as the one currently on
// top of the stack is understood to be a transaction nested inside that
// block's own savepoint: Accept squashes its undo log up into that
// parent and pops it, so the block remains the one unit a later
// RollbackToLatestSavepoint or PopSavepoints acts on. A savepoint opened
// for a NEW block number stays on the stack after Accept, independently
// poppable, exactly like statedb's block-level checkpoint sessions.
type savepoint struct {
	db       *TokenDB
	parent   *savepoint
	blockNum model.BlockNum
	undo     map[recordKey]undoEntry
	sealed   bool
}

func (s *savepoint) Accept() {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.sealed {
		return
	}
	s.sealed = true
	if s.parent == nil || s.parent.blockNum != s.blockNum {
		return
	}
	for rk, e := range s.undo {
		if _, already := s.parent.undo[rk]; already {
			continue
		}
		s.parent.undo[rk] = e
	}
	s.db.popSavepointIfTop(s)
}

func (s *savepoint) BlockNum() model.BlockNum {
	return s.blockNum
}

// TokenDB is the in-memory token domain store. A real deployment would
// back this with the same leveldb handle statedb uses, under a disjoint
// key prefix; the in-memory map is sufficient here since every record is
// small and the working set is bounded by active domains/accounts.
type TokenDB struct {
	mu sync.Mutex

	domains  map[string]*model.Domain
	groups   map[string]*model.Group
	accounts map[string]*model.Account
	tokens   map[string]*model.Token

	stack []*savepoint
}

func tokenKey(domain, name string) string {
	return domain + "\x00" + name
}

// New returns an empty token database.
func New() *TokenDB {
	return &TokenDB{
		domains:  make(map[string]*model.Domain),
		groups:   make(map[string]*model.Group),
		accounts: make(map[string]*model.Account),
		tokens:   make(map[string]*model.Token),
	}
}

func (db *TokenDB) recordUndo(kind recordKind, key string, existed bool, value interface{}) {
	if len(db.stack) == 0 {
		return
	}
	top := db.stack[len(db.stack)-1]
	rk := recordKey{kind: kind, key: key}
	if _, already := top.undo[rk]; already {
		return
	}
	top.undo[rk] = undoEntry{existed: existed, value: value}
}

func (db *TokenDB) ReadDomain(name string, cb func(*model.Domain)) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.domains[name]
	if !ok {
		return false
	}
	cb(d)
	return true
}

func (db *TokenDB) ReadGroup(id string, cb func(*model.Group)) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	g, ok := db.groups[id]
	if !ok {
		return false
	}
	cb(g)
	return true
}

func (db *TokenDB) ReadAccount(name string, cb func(*model.Account)) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	a, ok := db.accounts[name]
	if !ok {
		return false
	}
	cb(a)
	return true
}

func (db *TokenDB) ReadToken(domain, name string, cb func(*model.Token)) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tokens[tokenKey(domain, name)]
	if !ok {
		return false
	}
	cb(t)
	return true
}

func (db *TokenDB) PutDomain(d *model.Domain) {
	db.mu.Lock()
	defer db.mu.Unlock()
	old, existed := db.domains[d.Name]
	db.recordUndo(kindDomain, d.Name, existed, old)
	db.domains[d.Name] = d
}

func (db *TokenDB) PutGroup(g *model.Group) {
	db.mu.Lock()
	defer db.mu.Unlock()
	old, existed := db.groups[g.ID]
	db.recordUndo(kindGroup, g.ID, existed, old)
	db.groups[g.ID] = g
}

func (db *TokenDB) PutAccount(a *model.Account) {
	db.mu.Lock()
	defer db.mu.Unlock()
	old, existed := db.accounts[a.Name]
	db.recordUndo(kindAccount, a.Name, existed, old)
	db.accounts[a.Name] = a
}

func (db *TokenDB) PutToken(t *model.Token) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := tokenKey(t.Domain, t.Name)
	old, existed := db.tokens[key]
	db.recordUndo(kindToken, key, existed, old)
	db.tokens[key] = t
}

// NewSavepointSession opens a new undo scope tagged with blockNum and
// pushes it on the stack. Opened with the same blockNum as the savepoint
// on top, it is a nested transaction scope that Accept squashes into that
// parent (see savepoint); opened for a new blockNum, it is that block's
// own savepoint.
func (db *TokenDB) NewSavepointSession(blockNum model.BlockNum) model.TokenDBSavepoint {
	db.mu.Lock()
	defer db.mu.Unlock()
	var parent *savepoint
	if len(db.stack) > 0 {
		parent = db.stack[len(db.stack)-1]
	}
	sp := &savepoint{db: db, parent: parent, blockNum: blockNum, undo: make(map[recordKey]undoEntry)}
	db.stack = append(db.stack, sp)
	return sp
}

func (db *TokenDB) popSavepointIfTop(s *savepoint) {
	if len(db.stack) == 0 || db.stack[len(db.stack)-1] != s {
		return
	}
	db.stack = db.stack[:len(db.stack)-1]
}

// RollbackToLatestSavepoint undoes every write recorded since the most
// recently opened savepoint and pops it, regardless of whether Accept was
// called — this is abort_block's path, which always discards pending
// writes outright.
func (db *TokenDB) RollbackToLatestSavepoint() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.stack) == 0 {
		log.Warnf("RollbackToLatestSavepoint called with no open savepoint")
		return
	}
	top := db.stack[len(db.stack)-1]
	db.stack = db.stack[:len(db.stack)-1]
	for rk, e := range top.undo {
		db.restore(rk, e)
	}
}

func (db *TokenDB) restore(rk recordKey, e undoEntry) {
	switch rk.kind {
	case kindDomain:
		if !e.existed {
			delete(db.domains, rk.key)
		} else {
			db.domains[rk.key] = e.value.(*model.Domain)
		}
	case kindGroup:
		if !e.existed {
			delete(db.groups, rk.key)
		} else {
			db.groups[rk.key] = e.value.(*model.Group)
		}
	case kindAccount:
		if !e.existed {
			delete(db.accounts, rk.key)
		} else {
			db.accounts[rk.key] = e.value.(*model.Account)
		}
	case kindToken:
		if !e.existed {
			delete(db.tokens, rk.key)
		} else {
			db.tokens[rk.key] = e.value.(*model.Token)
		}
	}
}

// PopSavepoints permanently discards every savepoint tagged with a block
// number <= blockNum: their writes are already reflected in the live maps,
// so popping is just dropping the now-unneeded undo logs, the same
// accept-irreversible step commit_block/on_irreversible perform for
// statedb's Commit.
func (db *TokenDB) PopSavepoints(blockNum model.BlockNum) {
	db.mu.Lock()
	defer db.mu.Unlock()
	i := 0
	for i < len(db.stack) && db.stack[i].blockNum <= blockNum {
		i++
	}
	if i == 0 {
		return
	}
	db.stack = db.stack[i:]
}

var _ model.TokenDB = (*TokenDB)(nil)
