// Package signaling contains the connection registry and message-routing
// engine for the WebRTC signaling relay.
//
// Each accepted WebSocket gets a unique integer identity, a serialized
// outbound dispatcher, and two liveness timers (heartbeat ping and idle
// eviction). Negotiation frames are relayed between the two peers they name
// without the server interpreting their payloads.
package signaling
