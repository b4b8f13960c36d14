package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// ImageHandle is an immutable reference to raw image bytes plus the
// identity derived from them: a SHA-256 content hash used as the cache key
// component, and a sniffed MIME type for provider payloads. The zero value
// is an empty handle.
type ImageHandle struct {
	data []byte
	hash string
	mime string
}

// NewImageHandle wraps raw image bytes. The hash is the hex SHA-256 of the
// bytes. The MIME type is sniffed from the content and falls back to
// image/png when detection is inconclusive.
func NewImageHandle(data []byte) ImageHandle {
	sum := sha256.Sum256(data)
	return ImageHandle{
		data: data,
		hash: hex.EncodeToString(sum[:]),
		mime: sniffImageMIME(data),
	}
}

// Bytes returns the underlying image bytes. Callers must not mutate them;
// the hash was computed once at construction.
func (h ImageHandle) Bytes() []byte { return h.data }

// Hash returns the hex SHA-256 content hash.
func (h ImageHandle) Hash() string { return h.hash }

// MIME returns the sniffed content type, e.g. image/png.
func (h ImageHandle) MIME() string { return h.mime }

// Empty reports whether the handle holds no bytes.
func (h ImageHandle) Empty() bool { return len(h.data) == 0 }

var (
	tiffLittleEndian = []byte("II*\x00")
	tiffBigEndian    = []byte("MM\x00*")
)

// sniffImageMIME detects the image content type. http.DetectContentType
// covers png, jpeg, gif, webp and bmp; TIFF is not in its sniff table so
// the two byte-order magics are checked by hand.
func sniffImageMIME(data []byte) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	if len(data) >= 4 && (bytes.Equal(data[:4], tiffLittleEndian) || bytes.Equal(data[:4], tiffBigEndian)) {
		return "image/tiff"
	}
	return "image/png"
}
