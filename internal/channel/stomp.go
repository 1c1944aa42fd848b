package channel

import (
	"bytes"
	"fmt"
	"strings"
)

// STOMP 1.2 commands used by the group channel. The broker side of the
// contract is a plain STOMP-over-WebSocket endpoint; the four client
// commands below are the whole surface the engine needs.
const (
	cmdConnect    = "CONNECT"
	cmdConnected  = "CONNECTED"
	cmdSubscribe  = "SUBSCRIBE"
	cmdSend       = "SEND"
	cmdMessage    = "MESSAGE"
	cmdReceipt    = "RECEIPT"
	cmdDisconnect = "DISCONNECT"
	cmdError      = "ERROR"
)

// frame is one STOMP frame: a command line, header lines, a blank line, and
// a NUL-terminated body.
type frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

func newFrame(command string, headers map[string]string, body []byte) frame {
	if headers == nil {
		headers = map[string]string{}
	}
	return frame{Command: command, Headers: headers, Body: body}
}

// Marshal serializes the frame for the wire.
func (f frame) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')
	for k, v := range f.Headers {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// parseFrame parses a wire payload into a frame. Heartbeat payloads (a bare
// newline) return an empty command and no error.
func parseFrame(data []byte) (frame, error) {
	data = bytes.TrimRight(data, "\x00")
	if len(bytes.TrimSpace(data)) == 0 {
		return frame{}, nil
	}

	head, body, found := bytes.Cut(data, []byte("\n\n"))
	if !found {
		head = data
	}

	lines := strings.Split(string(head), "\n")
	command := strings.TrimSpace(lines[0])
	if command == "" {
		return frame{}, fmt.Errorf("parse frame: empty command")
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return frame{}, fmt.Errorf("parse frame: bad header line %q", line)
		}
		// First occurrence wins, per the STOMP spec.
		if _, seen := headers[k]; !seen {
			headers[k] = v
		}
	}

	return frame{Command: command, Headers: headers, Body: body}, nil
}
