// Package replication relays document store changes between core instances
// over MQTT.
//
// Several core instances may share one MongoDB database. Each instance only
// sees the writes it makes itself on its in-process change feed, so live
// subscriptions would miss a peer's writes. The Relay closes that gap:
//
//	local write → Feed → Relay → smarthome/changes/{collection} → peer Relay → peer Feed
//
// Every relayed change carries the sending instance's origin id. Changes
// that arrive with our own origin are echoes and are dropped; changes that
// already carry an origin are never relayed again, so a change crosses the
// broker at most once.
//
// The relay only carries notifications. Subscribers re-run their queries
// against the shared store, so a lost message delays a snapshot until the
// next change rather than corrupting it.
package replication
