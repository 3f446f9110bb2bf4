// Package responder maps a transcribed question to an answer. The primary
// path delegates to the external text-generation service with the embedded
// rules document as its system instruction; when that fails, a deterministic
// keyword fallback answers from a fixed set of topic explanations. The
// responder never returns an error to its caller.
package responder
