package domain

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"quorum/domain/mimetypes"
	"quorum/errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/crypto/blake2b"
)

const dataURLPrefix = "data:"

// Attachment is an inline image, re-encoded as standard base64.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
	Size     int    `json:"size"`
	Digest   string `json:"digest"` // blake2b-256 of the decoded bytes
}

// DecodeAttachment accepts "data:image/png;base64,..." or raw base64.
// The declared mime type of a data URL is ignored, the bytes are sniffed instead.
func DecodeAttachment(raw string, maxBytes int) (*Attachment, error) {
	payload := strings.TrimSpace(raw)
	if strings.HasPrefix(payload, dataURLPrefix) {
		header, data, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: malformed data URL", errors.ErrUnsupportedAttachment)
		}
		payload = data
	}

	content, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedAttachment, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty content", errors.ErrUnsupportedAttachment)
	}
	if maxBytes > 0 && len(content) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrUnsupportedAttachment, len(content), maxBytes)
	}

	detected := mimetype.Detect(content)
	image, ok := mimetypes.Image(detected.String())
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an accepted image", errors.ErrUnsupportedAttachment, detected.String())
	}

	sum := blake2b.Sum256(content)
	return &Attachment{
		MimeType: string(image),
		Data:     base64.StdEncoding.EncodeToString(content),
		Size:     len(content),
		Digest:   hex.EncodeToString(sum[:]),
	}, nil
}

// DataURL renders the attachment the way browsers display inline images.
func (a Attachment) DataURL() string {
	return dataURLPrefix + a.MimeType + ";base64," + a.Data
}
