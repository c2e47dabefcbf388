package analysis

import (
	"encoding/base64"
	"strings"
)

const dataURLPrefix = "data:image"

// EncodeImage turns a base64 payload into a data URL the model endpoint accepts.
// Payloads that are already image data URLs pass through unchanged. The MIME
// type is not checked.
func EncodeImage(payload, mimeType string) string {
	if strings.HasPrefix(payload, dataURLPrefix) {
		return payload
	}
	return "data:" + mimeType + ";base64," + payload
}

// EncodeImageBytes is EncodeImage for raw image bytes.
func EncodeImageBytes(raw []byte, mimeType string) string {
	return EncodeImage(base64.StdEncoding.EncodeToString(raw), mimeType)
}

// DecodeImage extracts the raw bytes and MIME type from a payload accepted by
// EncodeImage. fallbackType is used when the payload carries no header.
func DecodeImage(payload, fallbackType string) ([]byte, string, error) {
	mimeType := fallbackType
	data := payload
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if ok {
			data = rest
			header = strings.TrimPrefix(header, "data:")
			if t, _, _ := strings.Cut(header, ";"); t != "" {
				mimeType = t
			}
		}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, "", err
	}
	return raw, mimeType, nil
}
