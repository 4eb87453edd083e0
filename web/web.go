// Package web carries the embedded browser client used for manual testing:
// microphone capture, 16 kHz LINEAR16 encoding, and rendering of the relay's
// transcript, reply and audio frames.
package web

import _ "embed"

//go:embed client.html
var ClientHTML []byte
