// Package pipeline implements the buffering and dispatch core. On every
// incoming chunk it decides whether to accumulate or flush-and-dispatch,
// guaranteeing that no two transcription rounds overlap for the same session
// and that no chunk is lost or duplicated across a flush boundary. Flushed
// batches are processed asynchronously: transcription, then the responder,
// then a detached speech-synthesis task.
package pipeline
