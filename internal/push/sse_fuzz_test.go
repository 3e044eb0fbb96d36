package push

import (
	"bufio"
	"bytes"
	"testing"
)

func FuzzReadFrames_NeverPanics(f *testing.F) {
	f.Add([]byte("event: message\ndata: {\"id\":\"1\"}\n\n"))
	f.Add([]byte(": comment\n\ndata: {}\n\n"))
	f.Add([]byte("data: incomplete, no trailing blank line"))
	f.Add([]byte(""))

	f.Fuzz(func(t *testing.T, body []byte) {
		_ = readFrames(bufio.NewReader(bytes.NewReader(body)), func(fr rawFrame) {
			_, _, _ = parseFrame(fr)
		})
	})
}
