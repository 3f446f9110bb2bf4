// Package ai implements the adapters for the external AI provider: speech
// transcription, text generation, and speech synthesis. All three are thin
// request/response calls through the OpenAI API, bounded by a per-call
// timeout so a hung upstream can never wedge a session.
package ai
