// Package api implements the read-only HTTP status surface of the light
// manager.
//
// Routes:
//   - GET /api/v1/health          overall and per-component health
//   - GET /api/v1/session         connection manager status
//   - GET /api/v1/channels        every channel and its level
//   - GET /api/v1/channels/{id}   one channel
//   - GET /api/v1/audit           local journal of received messages
//   - GET /api/v1/metrics         JSON runtime summary
//   - GET /api/v1/ws              live stream (channel.changed, message.received)
//   - GET /metrics                Prometheus exposition
//
// Lights are commanded over MQTT only; the API never changes state.
//
// When api.auth.jwt_secret is set every /api/v1 route except /health needs
// an HS256 bearer token (Authorization header, or ?token= for the stream).
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
