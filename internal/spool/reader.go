package spool

import (
	"bytes"
	"encoding/json"
	"os"
)

// Line is one decoded JSONL record paired with the byte offset of the
// position just past its trailing newline, so callers (the replay
// worker) can advance a persisted cursor precisely to the boundary of the
// last record they actually consumed, even if a later record in the same
// read window was never applied.
type Line struct {
	Raw       json.RawMessage
	EndOffset int64
}

// ReadFrom reads up to maxBytes starting at offset, returning every
// complete JSON line parsed along with its end offset, the new offset
// (the byte position just past the last newline consumed), and whether
// the read reached EOF. Malformed lines are skipped silently. An offset
// at or past the file size returns an empty result with eof=true.
func ReadFrom(path string, offset, maxBytes int64) (lines []Line, newOffset int64, eof bool, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return nil, offset, true, nil
		}
		return nil, offset, false, openErr
	}
	defer f.Close()

	info, statErr := f.Stat()
	if statErr != nil {
		return nil, offset, false, statErr
	}
	size := info.Size()
	if offset >= size {
		return nil, offset, true, nil
	}

	toRead := size - offset
	if maxBytes > 0 && toRead > maxBytes {
		toRead = maxBytes
	}

	buf := make([]byte, toRead)
	if _, readErr := f.ReadAt(buf, offset); readErr != nil {
		return nil, offset, false, readErr
	}

	lastNL := bytes.LastIndexByte(buf, '\n')
	if lastNL < 0 {
		// No complete line in this window; nothing to return, offset
		// unchanged so the next call re-reads the partial line.
		return nil, offset, offset+toRead >= size, nil
	}

	complete := buf[:lastNL+1]
	lineStart := int64(0)
	for _, raw := range bytes.SplitAfter(complete, []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		end := lineStart + int64(len(raw))
		trimmed := bytes.TrimSpace(raw)
		lineStart = end
		if len(trimmed) == 0 {
			continue
		}
		var probe json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			continue
		}
		lines = append(lines, Line{Raw: probe, EndOffset: offset + end})
	}

	newOffset = offset + int64(lastNL) + 1
	return lines, newOffset, newOffset >= size, nil
}
