// Package mqtt provides the broker transport for Light Manager.
//
// This package manages:
//   - One broker session per Connect call, with the caller's client id
//   - Subscriptions whose messages are queued for the caller to Drain
//   - Publishing with size and topic validation
//   - Optional retained online/offline status with Last Will and Testament
//
// # Architecture
//
// The client does not reconnect on its own. The session manager decides
// when to attempt a connection and how long to wait between attempts, and
// drains inbound messages on its own goroutine:
//
//	Broker → paho router → inbox (bounded) → Drain → session manager
//
// The inbox never blocks paho's delivery goroutine, which also carries
// keepalive and acknowledgement traffic. A message that arrives while the
// inbox is full is dropped and logged; Dropped counts it and the SetOnDrop
// callback reports it. With QoS 1 or 2 the broker has already been
// acknowledged by then, so a drop is a lost command either way; size
// mqtt.session.inbox_size for the expected burst.
//
// # Security Considerations
//
//   - Connections are plain TCP; transport encryption is out of scope
//   - Credentials are validated against broker ACL
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	defer client.Close()
//
//	if err := client.Connect("lightmanager-3fa1", 60*time.Second); err != nil {
//	    return err
//	}
//	if err := client.Subscribe("/hq/main/lights"); err != nil {
//	    return err
//	}
//	client.Drain(func(topic string, payload []byte) {
//	    // handle message
//	})
package mqtt
