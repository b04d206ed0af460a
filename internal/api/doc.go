// Package api implements the HTTP REST API and WebSocket server for the
// smart home core.
//
// This package provides:
//   - Account endpoints: sign-up, email and federated sign-in, sign-out
//   - REST endpoints for homes, rooms and devices, scoped to their owner
//   - Device power toggling, stored readings and chart backfill
//   - The WiFi onboarding flow for new smart plugs
//   - A WebSocket hub streaming live snapshots of homes, rooms and devices
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, auth)
//
// # Security
//
// Every route except health, sign-up and sign-in requires a bearer session
// token issued by the identity provider. WebSocket connections use
// single-use tickets so the session token never appears in a URL.
//
// # Live data
//
// A WebSocket client subscribes to channels named "homes",
// "rooms:{homeId}" and "devices:{roomId}". Each channel is backed by a
// document store subscription and pushes the full list whenever it
// changes.
package api
