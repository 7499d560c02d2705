/*

This file contains the position-ownership collaborator: an NFT-like registry
with owner/approval semantics. Every ledger operation that consumes a
position authorizes through IsApprovedOrOwner, never through its own checks.

*/

package nft

import (
	"errors"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownToken  = errors.New("token does not exist")
	ErrNotAuthorized = errors.New("caller is not owner or approved")
)

// Authorizable is the capability every position-consuming operation checks.
type Authorizable interface {
	OwnerOf(id uint64) (string, error)
	IsApprovedOrOwner(id uint64, caller string) bool
}

// Registry is the full ownership surface the ledger mints and burns through.
type Registry interface {
	Authorizable
	Mint(owner string) (uint64, error)
	Burn(id uint64) error
	Approve(id uint64, operator string) error
}

type token struct {
	owner    string
	approved string
}

// MemoryRegistry is a map-backed Registry implementation. Token ids are
// never reused; a burned id stays dead.
type MemoryRegistry struct {
	tokens map[uint64]*token
	nextID uint64
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tokens: make(map[uint64]*token)}
}

func (r *MemoryRegistry) Mint(owner string) (uint64, error) {
	if owner == "" {
		return 0, ErrNotAuthorized
	}
	r.nextID++
	r.tokens[r.nextID] = &token{owner: owner}
	return r.nextID, nil
}

func (r *MemoryRegistry) Burn(id uint64) error {
	if _, ok := r.tokens[id]; !ok {
		return ErrUnknownToken
	}
	delete(r.tokens, id)
	return nil
}

func (r *MemoryRegistry) OwnerOf(id uint64) (string, error) {
	t, ok := r.tokens[id]
	if !ok {
		return "", ErrUnknownToken
	}
	return t.owner, nil
}

func (r *MemoryRegistry) Approve(id uint64, operator string) error {
	t, ok := r.tokens[id]
	if !ok {
		return ErrUnknownToken
	}
	t.approved = operator
	return nil
}

func (r *MemoryRegistry) IsApprovedOrOwner(id uint64, caller string) bool {
	t, ok := r.tokens[id]
	if !ok {
		return false
	}
	return t.owner == caller || (t.approved != "" && t.approved == caller)
}
