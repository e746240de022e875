package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe subscribes the current session to filter with the configured
// QoS. Matching messages are queued for Drain.
//
// Subscriptions are not restored on a new session; the caller subscribes
// again after each Connect.
//
// Parameters:
//   - filter: Topic filter, wildcards allowed
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(filter string) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if c.cfg.QoS < 0 || c.cfg.QoS > maxQoS {
		return ErrInvalidQoS
	}

	s, err := c.session()
	if err != nil {
		return err
	}

	token := s.client.Subscribe(filter, byte(c.cfg.QoS), func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.enqueue(s.stop, msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}
