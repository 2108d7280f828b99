// Package audio is the per-guild playback engine.
//
// A Manager keeps one session per guild. Each session has a FIFO queue and a
// single worker goroutine that connects to voice, runs the transcoder and
// streams frames until the queue is empty. Guilds never wait on each other.
//
// Enqueue and PlayClipNow validate synchronously and return. Anything that
// goes wrong afterwards is reported once, as an EventFailed, to the
// registered listeners. StopAll is the kill switch.
package audio
