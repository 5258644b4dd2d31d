// Package mimetypes lists the attachment types a room accepts.
package mimetypes

import "mime"

type MIME string

const (
	Unknown   MIME = "unknown"
	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"
	ImageBMP  MIME = "image/bmp"
)

// Images is the allow-list. SVG is left out, it can carry scripts.
var Images = []MIME{ImagePNG, ImageJPEG, ImageGIF, ImageWEBP, ImageBMP}

// Image returns the allowed type detected is, parameters ignored.
func Image(detected string) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	for _, allowed := range Images {
		if mt == string(allowed) {
			return allowed, true
		}
	}
	return Unknown, false
}
