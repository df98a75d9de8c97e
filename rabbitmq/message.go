package rabbitmq

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rabbitmq/amqp091-go"

	"github.com/jacklaaa89/jobqueue"
)

// message wraps a delivery so it can be handed to a job framework.
type message struct {
	amqp091.Delivery
}

// ID returns the delivery tag as the message id.
func (m *message) ID() string {
	return formatMessageID(m.DeliveryTag)
}

// decode converts the delivery to a jobqueue.Message, decoding the JSON body.
func (m *message) decode() (*jobqueue.Message, error) {
	var payload interface{}
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: delivery %d: %v", ErrMalformedPayload, m.DeliveryTag, err)
	}

	return &jobqueue.Message{
		ID:            m.ID(),
		Payload:       payload,
		CorrelationID: m.CorrelationId,
		Redelivered:   m.Redelivered,
	}, nil
}

// formatMessageID renders a delivery tag as a message id.
func formatMessageID(tag uint64) string {
	return strconv.FormatUint(tag, 10)
}

// parseMessageID converts a message id back to its delivery tag.
func parseMessageID(id string) (uint64, error) {
	tag, err := strconv.ParseUint(id, 10, 64)
	if err != nil || tag == 0 {
		return 0, fmt.Errorf("%w: %q", jobqueue.ErrInvalidMessageID, id)
	}
	return tag, nil
}
