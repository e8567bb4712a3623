package notify

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stayhq/reservations/internal/adapters/rabbit"
	"github.com/stayhq/reservations/internal/domain"
)

// RabbitNotifier publishes guest-facing notification events. Delivery to
// the guest (email, push) is a downstream consumer's job; this side only
// guarantees the event reached the broker.
type RabbitNotifier struct {
	pub *rabbit.Publisher
}

func NewRabbitNotifier(pub *rabbit.Publisher) *RabbitNotifier {
	return &RabbitNotifier{pub: pub}
}

func (n *RabbitNotifier) BookingConfirmed(ctx context.Context, res domain.Reservation) error {
	payload, err := json.Marshal(map[string]interface{}{
		"reservation_id": res.ID,
		"user_id":        res.UserID,
		"property_id":    res.PropertyID,
		"start_date":     res.StartDate,
		"end_date":       res.EndDate,
	})
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        payload,
	}
	if err := n.pub.Publish(ctx, "notify.booking_confirmed", msg); err != nil {
		return errors.Wrap(err, "publish booking confirmation")
	}
	return nil
}
