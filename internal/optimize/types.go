package optimize

// Format identifies the codec used for an output artifact.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	// FormatOther is a matched extension without dedicated settings; it is
	// re-encoded as-is.
	FormatOther Format = "other"
)

// Settings are the codec parameters for one output format.
type Settings struct {
	// Quality is 1-100. Ignored by the native PNG encoder.
	Quality int
	// CompressionLevel is the zlib level 0-9 for PNG output.
	CompressionLevel int
	// Progressive requests interlaced/progressive output where supported.
	Progressive bool
	// StripMetadata drops EXIF and other profiles.
	StripMetadata bool
}

// Profile maps each output format to its settings.
type Profile map[Format]Settings

// DefaultProfile returns the stock quality settings.
func DefaultProfile() Profile {
	return NewProfile(85, 80, 8, 80)
}

// NewProfile builds a Profile from the individual quality values.
func NewProfile(jpegQuality, pngQuality, pngCompression, webpQuality int) Profile {
	return Profile{
		FormatJPEG:  {Quality: jpegQuality, Progressive: true, StripMetadata: true},
		FormatPNG:   {Quality: pngQuality, CompressionLevel: pngCompression, StripMetadata: true},
		FormatWebP:  {Quality: webpQuality, StripMetadata: true},
		FormatOther: {StripMetadata: true},
	}
}

// For returns the settings for f, falling back to FormatOther.
func (p Profile) For(f Format) Settings {
	if s, ok := p[f]; ok {
		return s
	}
	return p[FormatOther]
}

// CandidateFile is an image discovered by the Scanner.
type CandidateFile struct {
	// Path is absolute.
	Path string
	// Rel is Path relative to the scanned root, using the OS separator.
	Rel string
	// Ext is the lowercase extension including the dot.
	Ext string
	// Size is the byte size at discovery time.
	Size int64
}

// ProgressEvent represents a progress update during a run.
type ProgressEvent struct {
	// Stage is "optimizing", "webp" or "done".
	Stage string
	// Current is the number of files finished so far.
	Current int
	// Total is the number of candidate files.
	Total int
	// File is the relative path of the file concerned.
	File string
}
