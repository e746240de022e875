package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends payload to topic with the configured QoS, not retained.
//
// The audit republish uses this path, so payload is sent exactly as given.
//
// Parameters:
//   - topic: Concrete topic (no wildcards)
//   - payload: Message payload (max 1MB)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, payload, false)
}

// PublishRetained publishes a retained message with the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.publish(topic, payload, true)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if err := ValidatePublishTopic(topic); err != nil {
		return err
	}
	if c.cfg.QoS < 0 || c.cfg.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	s, err := c.session()
	if err != nil {
		return err
	}

	token := s.client.Publish(topic, byte(c.cfg.QoS), retained, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
