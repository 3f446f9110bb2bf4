// Package protocol defines the JSON event envelope exchanged with browser
// clients over the websocket. It handles envelope parsing and validation for
// client events and provides typed constructors for server events.
package protocol
