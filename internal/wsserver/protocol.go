// Package wsserver provides a WebSocket server for streaming backlog output
// to an attached renderer.
//
// # Binary frame protocol
//
// Binary frame format: [1 byte: backlogID length][backlogID bytes][data bytes]
//
//   - Byte 0: uint8 length of the backlog ID (0..255).
//   - Bytes 1..1+backlogIDLen: backlog ID encoded as ASCII/UTF-8.
//   - Remaining bytes: raw terminal data (may be empty).
//
// EncodeBacklogData produces frames in this format; DecodeBacklogData parses them.
package wsserver

import (
	"fmt"
	"log/slog"
)

// maxBacklogIDLen is the maximum backlog ID length that fits in the 1-byte
// length prefix of the binary frame protocol. IDs exceeding this are truncated.
const maxBacklogIDLen = 255

// EncodeBacklogData constructs a binary frame for streaming backlog output to
// an attached renderer.
//
// Frame format:
//
//	[1 byte: len(backlogID) as uint8] [backlogID bytes (ASCII)] [data bytes]
//
// The frame avoids JSON serialization overhead on the hot path (every serve tick per backlog).
// A single allocation is used: make([]byte, 1+len(backlogID)+len(data)).
//
// Precondition: len(backlogID) must fit in uint8 (max 255 bytes). Longer IDs
// are silently truncated to 255 bytes with a debug log.
func EncodeBacklogData(backlogID string, data []byte) ([]byte, error) {
	if len(backlogID) == 0 {
		return nil, fmt.Errorf("wsserver: encode backlog data: backlogID must not be empty")
	}

	id := backlogID
	if len(id) > maxBacklogIDLen {
		// Warn (not Debug) because truncation changes the backlog ID used for
		// routing, risking data delivery to the wrong backlog if two IDs share
		// the same 255-byte prefix.
		slog.Warn("[DEBUG-WS] backlogID truncated — collision risk: different backlogs may receive each other's data",
			"originalLen", len(id), "truncatedTo", maxBacklogIDLen, "backlogID", id[:maxBacklogIDLen])
		id = id[:maxBacklogIDLen]
	}

	idLen := len(id)
	buf := make([]byte, 1+idLen+len(data))
	buf[0] = byte(idLen)
	copy(buf[1:1+idLen], id)
	copy(buf[1+idLen:], data)
	return buf, nil
}

// DecodeBacklogData parses a binary frame produced by EncodeBacklogData.
// Returns the backlog ID and raw terminal data, or an error if the frame is
// malformed (empty frame, insufficient length for declared backlog ID).
//
// Zero-copy: The returned data slice shares memory with frame.
// Callers must not modify frame after calling this function.
func DecodeBacklogData(frame []byte) (backlogID string, data []byte, err error) {
	if len(frame) < 1 {
		return "", nil, fmt.Errorf("wsserver: decode backlog data: empty frame")
	}

	idLen := int(frame[0])
	// The frame must contain at least the length byte + idLen bytes of backlog ID.
	if len(frame) < 1+idLen {
		return "", nil, fmt.Errorf("wsserver: decode backlog data: frame too short for backlogID length %d (frame length %d)", idLen, len(frame))
	}

	backlogID = string(frame[1 : 1+idLen])
	data = frame[1+idLen:]
	return backlogID, data, nil
}
