package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ReadPacket reads a single newline-terminated frame from the reader and
// decodes it. A malformed or oversized frame is a fatal error for the
// stream: the connection must be treated as closed, not resynchronized.
func ReadPacket(r *bufio.Reader) (Packet, error) {
	line, err := readLine(r)
	if err != nil {
		return Packet{}, err
	}

	var p Packet
	if err := json.Unmarshal(line, &p); err != nil {
		return Packet{}, fmt.Errorf("malformed frame: %w", err)
	}
	return p, nil
}

// readLine consumes bytes up to and including the next '\n', enforcing
// MaxPacketSize. Empty lines are skipped, matching the behavior of legacy
// clients that occasionally emit a bare newline between frames.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := r.ReadSlice('\n')
		buf.Write(chunk)
		if err == nil {
			line := bytes.TrimSpace(buf.Bytes())
			if len(line) == 0 {
				buf.Reset()
				continue
			}
			return line, nil
		}
		if err == bufio.ErrBufferFull {
			if buf.Len() > MaxPacketSize {
				return nil, fmt.Errorf("frame exceeds %d bytes", MaxPacketSize)
			}
			continue
		}
		if err == io.EOF && buf.Len() > 0 {
			// Truncated frame at stream end.
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

// WritePacket serializes a packet as one newline-terminated frame and writes
// it in a single Write call so concurrent writers never interleave frames.
func WritePacket(w io.Writer, p Packet) error {
	out, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}
	out = append(out, '\n')
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}
