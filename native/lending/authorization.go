package lending

import (
	"github.com/ethereum/go-ethereum/common"

	"isolend/core/events"
)

// IsPermitted reports whether caller may act on owner's positions at now.
// auth is the (owner, caller) record, or nil when none exists.
func IsPermitted(owner, caller common.Address, auth *Authorization, now uint64) bool {
	if owner == caller {
		return true
	}
	if auth == nil || auth.Authorizer != owner || auth.Authorized != caller {
		return false
	}
	return auth.IsAuthorized && !auth.IsRevoked && !auth.Expired(now)
}

// SetAuthorization grants delegate authority over owner's positions until
// expiresAt. Revoked records cannot be re-granted; close them first.
func (e *Engine) SetAuthorization(owner, delegate common.Address, expiresAt uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requireAddress(owner, delegate); err != nil {
		return err
	}
	if owner == delegate {
		return ErrSelfAuthorization
	}
	if expiresAt != NeverExpires && expiresAt <= e.now {
		return ErrInvalidExpiry
	}
	auth, err := e.state.GetAuthorization(owner, delegate)
	if err != nil {
		return err
	}
	if auth == nil {
		auth = &Authorization{Authorizer: owner, Authorized: delegate, CreatedAt: e.now}
	}
	if auth.IsRevoked {
		return ErrAuthorizationRevoked
	}
	auth.IsAuthorized = true
	auth.ExpiresAt = expiresAt
	if err := e.state.PutAuthorization(auth); err != nil {
		return err
	}
	e.emit(events.LendingAuthorization{Authorizer: owner, Authorized: delegate, Action: "set", ExpiresAt: expiresAt})
	return nil
}

// RevokeAuthorization permanently disables the (owner, delegate) record.
func (e *Engine) RevokeAuthorization(owner, delegate common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	auth, err := e.state.GetAuthorization(owner, delegate)
	if err != nil {
		return err
	}
	if auth == nil {
		return ErrAuthorizationNotFound
	}
	auth.IsRevoked = true
	if err := e.state.PutAuthorization(auth); err != nil {
		return err
	}
	e.emit(events.LendingAuthorization{Authorizer: owner, Authorized: delegate, Action: "revoke", ExpiresAt: auth.ExpiresAt, Revoked: true})
	return nil
}

// CloseAuthorization deletes a revoked or expired record so the slot can be
// granted afresh.
func (e *Engine) CloseAuthorization(owner, delegate common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	auth, err := e.state.GetAuthorization(owner, delegate)
	if err != nil {
		return err
	}
	if auth == nil {
		return ErrAuthorizationNotFound
	}
	if !auth.IsRevoked && !auth.Expired(e.now) {
		return ErrAuthorizationActive
	}
	if err := e.state.DeleteAuthorization(owner, delegate); err != nil {
		return err
	}
	e.emit(events.LendingAuthorization{Authorizer: owner, Authorized: delegate, Action: "close", ExpiresAt: auth.ExpiresAt, Revoked: auth.IsRevoked})
	return nil
}

// Authorization returns the (owner, delegate) record or ErrAuthorizationNotFound.
func (e *Engine) Authorization(owner, delegate common.Address) (*Authorization, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	auth, err := e.state.GetAuthorization(owner, delegate)
	if err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, ErrAuthorizationNotFound
	}
	return auth, nil
}
