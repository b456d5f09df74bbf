package ports

// RecorderOptions configures an encoder that records from an input surface.
type RecorderOptions struct {
	OutputPath string
	Width      int
	Height     int
	FPS        int
	BitrateBps int
	HDR        bool // tag the stream as BT.2020 HLG and encode 10-bit
}

// Recorder abstracts a hardware encoder fed through an input surface.
// Calls must follow Prepare, Start, Stop, Release.
type Recorder interface {
	// Prepare validates options and allocates the input surface.
	Prepare(opts RecorderOptions) error

	// InputSurface returns the window GL renders into.
	InputSurface() NativeWindow

	// Start begins recording frames presented to the input surface.
	Start() error

	// Stop finalizes the output file.
	Stop() error

	// Release frees encoder resources. Safe to call more than once.
	Release() error
}
