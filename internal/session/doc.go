// Package session provides per-connection session state and lifecycle
// management. Each session owns an ordered audio chunk buffer and a busy flag
// that guards against overlapping transcription rounds. The registry tracks
// all active sessions and evicts ones that have gone idle.
package session
