package model

// Domain, Group, Account and Token are the token DB's domain-specific
// record types. Field sets are intentionally minimal: business-rule
// validation of these records lives in the apply handlers (external to
// this core), not in the store.
type Domain struct {
	Name     string
	Issue    Authority
	Manage   Authority
	Transfer Authority
}

// Token is one issued token instance within a domain.
type Token struct {
	Domain string
	Name   string
	Owner  Authority
}

// Group is a named, possibly-recursive set of keys/sub-groups used to
// satisfy an Authority.
type Group struct {
	ID   string
	Keys []GroupKey
}

// GroupKey is one weighted leaf of a group: either a raw public key or a
// reference to another group by id.
type GroupKey struct {
	Key      PublicKey
	GroupRef string
	Weight   uint32
}

// Account is the account domain's per-name owner record.
type Account struct {
	Name  string
	Owner Authority
}

// Authority references a group (by id) that must be satisfied.
type Authority struct {
	GroupRef string
	Keys     []GroupKey // inline keys, same shape as a Group's
}

// TokenDBReader offers read-only, callback-style access to the four
// record kinds, matching the controller.cpp token_db.read_* shape the
// authorization checker is built against.
type TokenDBReader interface {
	ReadDomain(name string, cb func(*Domain)) bool
	ReadGroup(id string, cb func(*Group)) bool
	ReadAccount(name string, cb func(*Account)) bool
	ReadToken(domain, name string, cb func(*Token)) bool
}

// TokenDBWriter is the write surface apply handlers use inside the
// pending savepoint.
type TokenDBWriter interface {
	PutDomain(*Domain)
	PutGroup(*Group)
	PutAccount(*Account)
	PutToken(*Token)
}

// TokenDBSavepoint is a handle returned by NewSavepointSession. Accept
// seals it: a savepoint nested in one of the same block number is
// squashed into that parent, any other stays on the stack until
// PopSavepoints discards it by block number. A savepoint that is never
// accepted stays open; only RollbackToLatestSavepoint rolls it back.
type TokenDBSavepoint interface {
	Accept()
	BlockNum() BlockNum
}

// TokenDB is the domain-specific store keyed by a savepoint stack rather
// than nested sessions (distinct rollback primitive from StateDB).
type TokenDB interface {
	TokenDBReader
	TokenDBWriter

	NewSavepointSession(blockNum BlockNum) TokenDBSavepoint
	RollbackToLatestSavepoint()
	PopSavepoints(blockNum BlockNum)
}
