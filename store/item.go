package store

import "strings"

// Kind discriminates the content variants.
type Kind int

const (
	// KindAny is the no-filter sentinel for queries.
	KindAny Kind = iota - 1
	KindText
	KindImage
	KindLink
	KindColor
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindLink:
		return "link"
	case KindColor:
		return "color"
	case KindFile:
		return "file"
	}
	return "any"
}

// MetadataState tracks the lifecycle of a link's fetched metadata.
type MetadataState int

const (
	MetadataPending MetadataState = iota
	MetadataLoaded
	MetadataFailed
)

// Content is the variant payload of an item. SearchableText is the flattened
// textual projection used as the sole input to the index and ranker; it must
// be derivable from the variant's fields alone so a rebuild from primary rows
// regenerates it identically.
type Content interface {
	Kind() Kind
	SearchableText() string
}

type TextContent struct {
	Value string
}

func (c TextContent) Kind() Kind             { return KindText }
func (c TextContent) SearchableText() string { return c.Value }

// ImageContent holds the recompressed image and a small JPEG thumbnail.
// Description is filled asynchronously by the classifier and may be empty.
type ImageContent struct {
	Bytes          []byte
	ThumbnailBytes []byte
	Description    string
}

func (c ImageContent) Kind() Kind             { return KindImage }
func (c ImageContent) SearchableText() string { return c.Description }

type LinkContent struct {
	URL         string
	State       MetadataState
	Title       string
	Description string
	ImageBytes  []byte
}

func (c LinkContent) Kind() Kind { return KindLink }

func (c LinkContent) SearchableText() string {
	if c.Title == "" {
		return c.URL
	}
	return c.Title + " " + c.URL
}

// ColorContent packs the channels as R<<24 | G<<16 | B<<8 | A.
type ColorContent struct {
	RGBA    uint32
	RawText string
}

func (c ColorContent) Kind() Kind             { return KindColor }
func (c ColorContent) SearchableText() string { return c.RawText }

type FilePath struct {
	Path        string
	DisplayName string
	ByteSize    int64
	Bookmark    []byte
}

type FileContent struct {
	Paths []FilePath
}

func (c FileContent) Kind() Kind { return KindFile }

func (c FileContent) SearchableText() string {
	parts := make([]string, 0, len(c.Paths)*2)
	for _, p := range c.Paths {
		if p.DisplayName != "" {
			parts = append(parts, p.DisplayName)
		}
		parts = append(parts, p.Path)
	}
	return strings.Join(parts, " ")
}

// Item is the atomic unit of clipboard history.
type Item struct {
	ID            int64
	ContentHash   [16]byte
	Timestamp     int64 // unix milliseconds of last use
	SourceAppName string
	SourceAppID   string
	Content       Content
	// SearchableText is persisted alongside the row; always equal to
	// Content.SearchableText().
	SearchableText string
}

// Row is the light projection the search path hydrates: enough to score and
// shape a candidate without pulling blobs.
type Row struct {
	ID             int64
	Kind           Kind
	Timestamp      int64
	SearchableText string
}
