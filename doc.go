// Package kephaschat provides a real-time one-to-one chat relay over WebSocket.
//
// Clients connect, authenticate with a token, and then exchange direct
// messages, edits, deletions, read receipts, pins and typing indicators with
// other online users. The relay tracks which identities are online, fans
// every event out to the sessions it concerns, and keeps a heartbeat running
// against every authenticated session.
//
// # Architecture
//
// The module is split into a transport and an engine:
//
//   - ws: the WebSocket server (upgrade, read loop, write pump, keepalive,
//     rate limiting). It hands every inbound frame to a FrameHandler.
//   - internal/relay: the FrameHandler. It owns the session registry, the
//     connection lifecycle and the per-type frame handlers.
//
// Durable state lives behind two adapter interfaces: MessageStore (messages,
// read receipts and pins; PostgreSQL or in-memory) and PresenceStore
// (online and typing markers with expiry; Redis or in-memory). Tokens are
// verified by an Authenticator (HS256 JWT).
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/kephaschat/internal/relay"
//	    "github.com/luciancaetano/kephaschat/ws"
//	)
//
//	engine, err := relay.New(relay.Options{
//	    Auth:     authenticator,
//	    Messages: messageStore,
//	    Presence: presenceStore,
//	})
//	if err != nil {
//	    return err
//	}
//	go engine.Run(ctx) // heartbeat
//
//	server := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllowedOrigins(origins), engine))
//	server.Start(ctx)
//
// The cmd/kephaschat binary wires all of this from environment variables and
// flags.
//
// # Protocol Format
//
// Every frame is a JSON text message with a "type" discriminator:
//
//	{"type":"auth","token":"..."}
//	{"type":"message","to":"bob","text":"hi"}
//	{"type":"message_sent","message":{...}}
//
// The first frame of a connection must be auth. Any other known type before
// authentication is answered with an error frame "Not authenticated"; an
// unknown type with "Unknown message type". A malformed frame never closes
// the connection. A failed auth is answered with auth_error and the
// connection is closed with code 1008.
//
// # Rate Limiting
//
// Each client has an independent token bucket:
//
//	// Default: 100 frames/second, burst 200
//	rateLimitConfig := ws.DefaultRateLimitConfig()
//
//	// Disabled
//	rateLimitConfig := ws.NoRateLimit()
//
// When the limit is exceeded the connection is closed with 1008 (Policy Violation).
//
// # Security Features
//
//   - Rate limiting per client
//   - Maximum inbound frame: 64KB by default (close code 1009 above it)
//   - Read timeout: 60s, write timeout: 10s
//   - Origin allow-list via ws.AllowedOrigins
//
// # Important
//
//   - Frames of one connection are handled in order, one at a time
//   - Sends never block on a slow peer; a full send queue drops the frame
//   - One session per identity: a newer login replaces the older session
package kephaschat
