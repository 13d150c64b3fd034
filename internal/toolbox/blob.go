package toolbox

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Note is a single usernote entry inside the compressed blob.
type Note struct {
	Text    string `json:"n"`
	Time    int64  `json:"t"`
	Mod     int    `json:"m"` // index into constants.users
	Link    string `json:"l"` // shorthand "l,<submission-id>"
	Warning int    `json:"w"` // index into constants.warnings
}

// UserNotes holds the per-user note list.
type UserNotes struct {
	Notes []Note `json:"ns"`
}

// Constants maps the blob's note indices back to names.
type Constants struct {
	Users    []string `json:"users"`
	Warnings []string `json:"warnings"`
}

// DecompressBlob decodes base64(zlib(json)) into the per-user note map.
// An empty blob yields an empty map.
func DecompressBlob(blob string) (map[string]*UserNotes, error) {
	notes := make(map[string]*UserNotes)
	if blob == "" {
		return notes, nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode notes blob: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open notes blob: %w", err)
	}
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate notes blob: %w", err)
	}
	if err := json.Unmarshal(plain, &notes); err != nil {
		return nil, fmt.Errorf("parse notes blob: %w", err)
	}
	return notes, nil
}

// CompressBlob encodes the note map back into base64(zlib(json)).
func CompressBlob(notes map[string]*UserNotes) (string, error) {
	plain, err := json.Marshal(notes)
	if err != nil {
		return "", fmt.Errorf("encode notes: %w", err)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(plain); err != nil {
		return "", fmt.Errorf("deflate notes: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close notes blob: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
