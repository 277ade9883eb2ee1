// Package media defines the samples, upload requests, and server responses that
// flow through one capture pipeline run.
package media

import (
	"mime"
	"path/filepath"
	"strings"
)

// Kind identifies what a capture produced.
type Kind string

const (
	Photo     Kind = "photo"
	AudioClip Kind = "audio_clip"
)

// Sample is one captured photo or audio clip on local storage.
type Sample struct {
	Kind     Kind
	URI      string
	MIMEType string
}

// UploadRequest is one transfer of a sample to a remote endpoint.
type UploadRequest struct {
	Sample    Sample
	Endpoint  string
	FieldName string
	Fields    map[string]string
}

// ContentType is the closed set of response payload kinds dispatch understands.
type ContentType string

const (
	ContentJSON    ContentType = "json"
	ContentAudio   ContentType = "audio"
	ContentUnknown ContentType = "unknown"
)

// Response is the fully-read server answer to one upload. URL is the address
// that produced it, used to resolve relative links in the payload.
type Response struct {
	URL              string
	Type             ContentType
	RawContentType   string
	TransferEncoding string
	StatusCode       int
	Payload          []byte
}

// Classify maps a Content-Type header value to a ContentType.
func Classify(contentType string) ContentType {
	raw := strings.TrimSpace(contentType)
	if raw == "" {
		return ContentUnknown
	}

	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(raw, ";", 2)[0]))
	}

	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return ContentJSON
	case strings.HasPrefix(mediaType, "audio/"):
		return ContentAudio
	default:
		return ContentUnknown
	}
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

// InferMIME derives a sample MIME type from its file extension, falling back to
// a generic type for the capture kind.
func InferMIME(path string, kind Kind) string {
	ext := strings.ToLower(filepath.Ext(path))
	if known, ok := extensionTypes[ext]; ok {
		return known
	}
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	if kind == AudioClip {
		return "audio/wav"
	}
	return "image/jpeg"
}

// ExtensionFor returns a file extension suited to an audio Content-Type.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return ".bin"
	}
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/mp4", "audio/aac":
		return ".m4a"
	case "audio/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
