package ingest

import "context"

// Flavor names a pasteboard data representation.
type Flavor string

const (
	FlavorFileList Flavor = "file-list"
	FlavorTIFF     Flavor = "tiff"
	FlavorPNG      Flavor = "png"
	FlavorJPEG     Flavor = "jpeg"
)

// imageFlavors is the classification probe order for image data.
var imageFlavors = []Flavor{FlavorTIFF, FlavorPNG, FlavorJPEG}

// Marker is a privacy hint advertised alongside pasteboard contents.
type Marker int

const (
	// MarkerConcealed marks secrets (password managers set this).
	MarkerConcealed Marker = iota
	// MarkerTransient marks ephemeral data other apps should not keep.
	MarkerTransient
)

// Pasteboard is the OS clipboard surface the pipeline polls. Data for the
// file-list flavor is a newline-separated path list.
type Pasteboard interface {
	ChangeCount() int64
	Data(flavor Flavor) ([]byte, bool)
	String() (string, bool)
	MarkerPresent(markers ...Marker) bool
	FrontmostApp() (name, bundleID string)
}

// PowerMonitor reflects OS sleep/wake notifications and the low-power
// state. While asleep, polling is suspended entirely.
type PowerMonitor interface {
	Asleep() bool
	LowPower() bool
}

// Label is one classifier guess for an image.
type Label struct {
	Name       string
	Confidence float64
}

// ImageClassifier produces coarse category labels for an image. External
// collaborator; only the shape is the engine's concern.
type ImageClassifier interface {
	Classify(ctx context.Context, imageBytes []byte) ([]Label, error)
}

// AlwaysAwake is the PowerMonitor for hosts without power notifications.
type AlwaysAwake struct{}

func (AlwaysAwake) Asleep() bool   { return false }
func (AlwaysAwake) LowPower() bool { return false }
