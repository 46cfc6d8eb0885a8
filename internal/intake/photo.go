package intake

import "github.com/gabriel-vasile/mimetype"

const (
	MaxPhotos       = 3
	DefaultMaxPhoto = 10 << 20
	SniffLen        = 512
)

// PhotoMeta describes one uploaded file. Head holds the first bytes of the
// content; the type is decided from them, never from the client's header.
type PhotoMeta struct {
	Field    string
	Filename string
	Size     int64
	Head     []byte

	// Ext is set by the validator to the extension matching the sniffed type.
	Ext string
}

// photoTypes maps accepted content types to the stored extension. HEIF
// stills from iPhones are kept as .heic.
var photoTypes = []struct {
	mime string
	ext  string
}{
	{"image/jpeg", ".jpg"},
	{"image/png", ".png"},
	{"image/webp", ".webp"},
	{"image/heic", ".heic"},
	{"image/heif", ".heic"},
}

// DetectPhoto returns the file extension for a supported image format.
func DetectPhoto(head []byte) (string, bool) {
	if len(head) > SniffLen {
		head = head[:SniffLen]
	}
	m := mimetype.Detect(head)
	for _, t := range photoTypes {
		if m.Is(t.mime) {
			return t.ext, true
		}
	}
	return "", false
}
