package exception

import "github.com/yanun0323/errors"

var (
	ErrBrokerNotConnected = errors.New("broker: not connected")
	ErrBrokerNotLoggedIn  = errors.New("broker: not logged in")
	ErrBrokerRejected     = errors.New("broker: order rejected")
	ErrBrokerUnknownOrder = errors.New("broker: unknown order")
	ErrConnectionClose    = errors.New("connection closed")
)
