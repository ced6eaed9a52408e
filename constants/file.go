package constants

import (
	"mime"
	"strings"
)

// Document formats understood by the rasterizer.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// MaxDocumentBytes caps both in-memory buffers and downloads (20 MiB).
const MaxDocumentBytes int64 = 20 << 20

const MimePDF = "application/pdf"

// AllowedMimeTypes maps accepted mimetypes to the extension used for temp files.
var AllowedMimeTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/tiff":      ".tiff",
	"application/pdf": ".pdf",
}

var extToMime = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"pdf":  MimePDF,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMimeType strips parameters ("; charset=...") and lowercases.
func NormalizeMimeType(mt string) string {
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return strings.ToLower(mt)
}

// MimeTypeFromExt returns "" for unknown extensions.
func MimeTypeFromExt(ext string) string {
	return extToMime[NormalizeExt(ext)]
}

// MapMimeToFormat returns PDF, IMAGE or "" when unsupported.
func MapMimeToFormat(mt string) string {
	mt = NormalizeMimeType(mt)
	if _, ok := AllowedMimeTypes[mt]; !ok {
		return ""
	}
	if mt == MimePDF {
		return PDF
	}
	return IMAGE
}

// ExtForMimeType returns the temp-file extension for an accepted mimetype.
func ExtForMimeType(mt string) string {
	return AllowedMimeTypes[NormalizeMimeType(mt)]
}
