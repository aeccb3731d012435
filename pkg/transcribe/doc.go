// Package transcribe turns the mixed recording into a timestamped text
// transcript.
//
// [Transcriber] is a recorder.Processor. It accumulates mono audio on the
// session loop and hands fixed-length buffers to a single worker through a
// bounded queue, so recognition speed never affects capture. When the
// worker falls behind, whole buffers are dropped and counted.
//
// Recognition is delegated to a [Backend]: [OpenAI] calls the OpenAI audio
// transcription API (or any compatible server), [Command] runs an external
// recognizer executable.
//
// Transcript lines look like:
//
//	[12.34s] hello there
//	[15.00s - User] speaker-labelled line
package transcribe
