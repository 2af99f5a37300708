// Package upstream speaks to the market data endpoints: it dials the
// WebSocket, performs the CONNECT/SUBSCRIBE handshake and hands every
// PUBLISH to the caller.
//
// A Session is one connection attempt and never reconnects by itself.
// Aggregate wraps a market Session subscribed to many symbols and owns its
// own reconnect loop with a stall watchdog.
package upstream
