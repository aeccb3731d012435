// Package diarize attributes short windows of a two-party recording to the
// local user, the remote/system side, both or neither, by comparing the
// energy of the unmixed streams.
package diarize
