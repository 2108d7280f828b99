// Package opus turns audio files into Opus frames for Discord voice playback.
//
// A Transcoder runs an external program (FFmpeg by default) on a source file
// and exposes its output as a pull-based Stream of frames. The program's
// output can be Ogg/Opus, raw s16le PCM that is encoded here, or the
// length-prefixed frame format ([uint16 LE length][opus bytes]) written by
// FrameWriter.
package opus
