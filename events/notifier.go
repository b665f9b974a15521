package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/medichain/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCompleted     = "order.completed"
	EventEmergencyBroadcast = "order.emergency"
)

// OrderEvent is the payload published for every order change
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	MedicineName   string    `json:"medicineName"`
	Quantity       int       `json:"quantity"`
	FromHospitalID string    `json:"fromHospitalId"`
	ToHospitalID   string    `json:"toHospitalId"`
	Status         string    `json:"status"`
	Emergency      bool      `json:"emergency"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func newOrderEvent(eventType string, o *models.Order) OrderEvent {
	return OrderEvent{
		Type:           eventType,
		OrderID:        o.ID,
		MedicineName:   o.MedicineName,
		Quantity:       o.Quantity,
		FromHospitalID: o.FromHospitalID,
		ToHospitalID:   o.ToHospitalID,
		Status:         o.Status,
		Emergency:      o.Emergency,
		OccurredAt:     time.Now().UTC(),
	}
}

// Notifier fans order changes out to the order stream and the emergency
// broadcast channel. Publishing happens in the background and failures are
// only logged.
type Notifier struct {
	orders      Publisher
	emergencies Publisher
	timeout     time.Duration
	logger      cmtlog.Logger
	wg          sync.WaitGroup
}

func NewNotifier(orders, emergencies Publisher, timeout time.Duration, logger cmtlog.Logger) *Notifier {
	logger = logger.With("module", "events")
	if orders == nil {
		orders = NewLogPublisher("orders", logger)
	}
	if emergencies == nil {
		emergencies = NewLogPublisher("emergency", logger)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{orders: orders, emergencies: emergencies, timeout: timeout, logger: logger}
}

func (n *Notifier) OrderCreated(o *models.Order) {
	n.publish(n.orders, newOrderEvent(EventOrderCreated, o))
}

func (n *Notifier) OrderStatusChanged(o *models.Order) {
	if o.Status == models.OrderStatusCompleted {
		n.OrderCompleted(o)
		return
	}
	n.publish(n.orders, newOrderEvent(EventOrderStatusChanged, o))
}

func (n *Notifier) OrderCompleted(o *models.Order) {
	n.publish(n.orders, newOrderEvent(EventOrderCompleted, o))
}

// EmergencyBroadcast sends an SOS for an emergency order to every listening hospital
func (n *Notifier) EmergencyBroadcast(o *models.Order) {
	n.logger.Info("Emergency order broadcast",
		"order_id", o.ID,
		"medicine", o.MedicineName,
		"quantity", o.Quantity,
		"from_hospital", o.FromHospitalID,
	)
	n.publish(n.emergencies, newOrderEvent(EventEmergencyBroadcast, o))
}

func (n *Notifier) publish(p Publisher, ev OrderEvent) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := p.Publish(ctx, ev.OrderID, ev); err != nil {
			n.logger.Error("Failed to publish event", "type", ev.Type, "order_id", ev.OrderID, "err", err)
		}
	}()
}

// Close waits for in-flight publishes and closes both publishers
func (n *Notifier) Close() error {
	n.wg.Wait()
	return errors.Join(n.orders.Close(), n.emergencies.Close())
}
