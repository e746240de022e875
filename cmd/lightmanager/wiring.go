package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lightmanager/lightmanager/internal/channel"
	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
	"github.com/lightmanager/lightmanager/internal/infrastructure/influxdb"
	"github.com/lightmanager/lightmanager/internal/infrastructure/logging"
	"github.com/lightmanager/lightmanager/internal/metrics"
	"github.com/lightmanager/lightmanager/internal/output"
	"github.com/lightmanager/lightmanager/internal/session"
)

// stateSaveTimeout bounds one channel state write.
const stateSaveTimeout = 2 * time.Second

// channelBindings converts the channel table in config.yaml.
func channelBindings(cfgs []config.ChannelConfig) ([]channel.Binding, []string, error) {
	bindings := make([]channel.Binding, 0, len(cfgs))
	pins := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		initial, err := channel.ParseState(strings.ToLower(c.Initial))
		if err != nil {
			return nil, nil, fmt.Errorf("channel %d: %w", c.ID, err)
		}
		bindings = append(bindings, channel.Binding{ID: c.ID, Pin: c.Pin, Initial: initial})
		pins = append(pins, c.Pin)
	}
	return bindings, pins, nil
}

// meteredOutput counts failed hardware writes per channel.
type meteredOutput struct {
	driver   output.Driver
	channels map[string]string // pin -> channel id label
}

func newMeteredOutput(driver output.Driver, bindings []channel.Binding) *meteredOutput {
	m := &meteredOutput{driver: driver, channels: make(map[string]string, len(bindings))}
	for _, b := range bindings {
		m.channels[b.Pin] = strconv.Itoa(b.ID)
	}
	return m
}

func (m *meteredOutput) SetOutput(pin string, asserted bool) error {
	err := m.driver.SetOutput(pin, asserted)
	if err != nil {
		metrics.RecordChannelWriteError(m.channels[pin])
	}
	return err
}

// publishChannelMetrics sets the channel gauges from the registry.
func publishChannelMetrics(registry *channel.Registry) {
	for _, ch := range registry.Channels() {
		metrics.SetChannelState(strconv.Itoa(ch.ID), bool(ch.State))
	}
}

// channelChangeHook persists, meters and records every channel change.
// It runs under the connection manager lock.
func channelChangeHook(ctx context.Context, store channel.StateStore, influx *influxdb.Sink, log *logging.Logger) channel.ChangeFunc {
	return func(ch channel.Channel, previous channel.State) {
		metrics.SetChannelState(strconv.Itoa(ch.ID), bool(ch.State))

		log.Debug("channel changed",
			"channel", ch.ID,
			"from", previous.String(),
			"to", ch.State.String(),
		)

		if store != nil {
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateSaveTimeout)
			if err := store.Save(saveCtx, ch.ID, ch.State); err != nil {
				log.Warn("channel state not persisted", "channel", ch.ID, "error", err)
			}
			cancel()
		}

		// A nil sink discards the point.
		influx.WriteChannelState(ch.ID, bool(ch.State), time.Now())
	}
}

// commandTelemetry writes one InfluxDB point per received message.
func commandTelemetry(influx *influxdb.Sink) session.Observer {
	return session.ObserverFunc(func(_ context.Context, o session.Observation) {
		influx.WriteCommand(o.Event.Type, o.Handled, o.AuditErr == nil, o.ReceivedAt)
	})
}

// observerChain notifies each observer in order.
type observerChain []session.Observer

func (c observerChain) Observe(ctx context.Context, o session.Observation) {
	for _, obs := range c {
		obs.Observe(ctx, o)
	}
}

// lockedChannels reads the registry under the connection manager lock so
// API snapshots never interleave with a dispatch.
type lockedChannels struct {
	manager  *session.Manager
	registry *channel.Registry
}

func (l lockedChannels) Channels() []channel.Channel {
	var out []channel.Channel
	l.manager.View(func() { out = l.registry.Channels() })
	return out
}
