package order

import (
	"github.com/yanun0323/errors"

	"autotrader/internal/model"
	"autotrader/internal/model/enum"
	"autotrader/pkg/exception"
)

var transitions = map[enum.OrderStatus][]enum.OrderStatus{
	enum.OrderStatusPending: {
		enum.OrderStatusSubmitted,
		enum.OrderStatusCancelled,
		enum.OrderStatusFailed,
	},
	enum.OrderStatusSubmitted: {
		enum.OrderStatusFilled,
		enum.OrderStatusPartial,
		enum.OrderStatusRejected,
		enum.OrderStatusFailed,
		enum.OrderStatusCancelled,
	},
	enum.OrderStatusPartial: {
		enum.OrderStatusPartial,
		enum.OrderStatusFilled,
		enum.OrderStatusCancelled,
	},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to enum.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine is the order registry. It is not safe for concurrent use;
// the pipeline guards it.
type StateMachine struct {
	orders   map[string]*model.OrderDetail
	byBroker map[string]string
	sequence []string
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		orders:   make(map[string]*model.OrderDetail),
		byBroker: make(map[string]string),
	}
}

// Add registers a new Pending order.
func (m *StateMachine) Add(d model.OrderDetail) error {
	if d.OrderID == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "empty order id")
	}
	if _, ok := m.orders[d.OrderID]; ok {
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "duplicate order %s", d.OrderID)
	}
	d.Status = enum.OrderStatusPending
	m.orders[d.OrderID] = &d
	m.sequence = append(m.sequence, d.OrderID)
	return nil
}

func (m *StateMachine) Order(id string) (model.OrderDetail, bool) {
	d, ok := m.orders[id]
	if !ok {
		return model.OrderDetail{}, false
	}
	return *d, true
}

func (m *StateMachine) status(id string) (enum.OrderStatus, bool) {
	d, ok := m.orders[id]
	if !ok {
		return 0, false
	}
	return d.Status, true
}

// ByBrokerID resolves a broker-assigned id to the local order id.
func (m *StateMachine) ByBrokerID(brokerID string) (string, bool) {
	id, ok := m.byBroker[brokerID]
	return id, ok
}

// Transition moves the order to status after applying edit.
func (m *StateMachine) Transition(id string, to enum.OrderStatus, edit func(*model.OrderDetail)) (model.OrderDetail, error) {
	d, ok := m.orders[id]
	if !ok {
		return model.OrderDetail{}, errors.Wrap(exception.ErrOrderNotFound, id)
	}
	if !CanTransition(d.Status, to) {
		return *d, errors.Wrapf(exception.ErrOrderInvalidTransition, "%s: %s -> %s", id, d.Status, to)
	}
	if edit != nil {
		edit(d)
	}
	d.Status = to
	if d.BrokerOrderID != "" {
		m.byBroker[d.BrokerOrderID] = id
	}
	return *d, nil
}

// Update edits a live order without changing its status.
func (m *StateMachine) Update(id string, edit func(*model.OrderDetail)) (model.OrderDetail, error) {
	d, ok := m.orders[id]
	if !ok {
		return model.OrderDetail{}, errors.Wrap(exception.ErrOrderNotFound, id)
	}
	if d.Status.IsTerminal() {
		return *d, errors.Wrapf(exception.ErrOrderInvalidTransition, "%s is %s", id, d.Status)
	}
	edit(d)
	return *d, nil
}

// List returns every order in submission order.
func (m *StateMachine) List() []model.OrderDetail {
	out := make([]model.OrderDetail, 0, len(m.sequence))
	for _, id := range m.sequence {
		out = append(out, *m.orders[id])
	}
	return out
}

// Prune drops terminal orders.
func (m *StateMachine) Prune() {
	kept := m.sequence[:0]
	for _, id := range m.sequence {
		d := m.orders[id]
		if d.Status.IsTerminal() {
			delete(m.orders, id)
			if d.BrokerOrderID != "" {
				delete(m.byBroker, d.BrokerOrderID)
			}
			continue
		}
		kept = append(kept, id)
	}
	m.sequence = kept
}
