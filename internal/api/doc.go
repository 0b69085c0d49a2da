// Package api implements the bridge's HTTP status server and WebSocket
// event stream.
//
// Endpoints, all under /api/v1:
//   - GET /health: liveness and build version
//   - GET /stats: live client count and per-event dispatched/dropped totals
//   - GET /stats/{event}: totals for one event kind
//   - GET /events (websocket.path): the event stream
//
// # Authentication
//
// With api.auth.secret set, every endpoint but /health needs an HS256 JWT
// signed with that secret in an "Authorization: Bearer" header. The event
// stream also accepts the token as ?ticket=, which must carry an exp claim.
// The secret may only be left empty when the server binds a loopback host.
//
// # Event stream
//
// A WebSocket client subscribes to channels named after event kinds:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["connect-result","topic-message"]}}
//
// The channel "*" matches every kind. Each bridge event the driver publishes
// is then delivered as
//
//	{"type":"event","event_type":"topic-message","payload":{"client":0,"topic":"a/b","qos":1,"payload":"21.5"}}
//
// An "error" field is present, possibly empty, only on failed events.
// Slow clients lose events rather than stall the bridge.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
