package lending

import (
	"github.com/ethereum/go-ethereum/common"

	"isolend/core/events"
)

// CreatePosition materialises an empty position for owner. It is a no-op
// when the position already exists.
func (e *Engine) CreatePosition(id common.Hash, owner common.Address) error {
	if err := requireAddress(owner); err != nil {
		return err
	}
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.market(id); err != nil {
		return err
	}
	existing, err := e.state.GetPosition(id, owner)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if err := e.state.PutPosition(NewPosition(id, owner)); err != nil {
		return err
	}
	e.emit(events.LendingPosition{Market: id, Owner: owner, Action: "create"})
	return nil
}

// ClosePosition deletes caller's position once every balance is zero.
func (e *Engine) ClosePosition(id common.Hash, caller common.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	pos, err := e.state.GetPosition(id, caller)
	if err != nil {
		return err
	}
	if pos == nil {
		return ErrPositionNotFound
	}
	pos.EnsureDefaults()
	if !pos.IsEmpty() {
		return ErrPositionNotEmpty
	}
	if err := e.state.DeletePosition(id, caller); err != nil {
		return err
	}
	e.emit(events.LendingPosition{Market: id, Owner: caller, Action: "close"})
	return nil
}
