// Package relay holds the forwarding state and decision logic.
//
// Store keeps the source/target chat identifiers and the ordered relay log.
// Forwarder reads the identifiers on every inbound Event and asks a Copier to
// duplicate matching messages into the target chat, recording one log line per
// attempt. Transports (Telegram, HTTP) live elsewhere and only talk to these
// two types.
package relay
