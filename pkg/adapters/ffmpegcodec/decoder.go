package ffmpegcodec

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

const (
	defaultInputBuffers = 4
	minInputBufferSize  = 1 << 20
)

// Option configures a Decoder.
type Option func(*Decoder)

// WithFFmpegPath uses path instead of searching for ffmpeg.
func WithFFmpegPath(path string) Option {
	return func(d *Decoder) { d.path = path }
}

// WithStartFunc replaces the process launcher.
func WithStartFunc(start StartFunc) Option {
	return func(d *Decoder) { d.start = start }
}

// WithInputBuffers sets the number of input buffers handed to the client.
func WithInputBuffers(n int) Option {
	return func(d *Decoder) { d.numInputs = n }
}

// Decoder implements ports.VideoDecoder on top of ffmpeg. Annex B input is
// piped to the process and 10-bit 4:2:0 pictures are read back in
// presentation order. Pictures released with render=true are queued to
// the configured surface.
type Decoder struct {
	path      string
	start     StartFunc
	numInputs int
	logger    ports.Logger

	mu         sync.Mutex
	cb         ports.DecoderCallback
	format     media.Format
	surface    ports.Surface
	configured bool
	started    bool
	released   bool
	epoch      int
	proc       Process
	inputs     [][]byte
	owned      map[int]bool
	outputs    map[int]*media.Picture
	nextOut    int
	pending    []int64 // queued timestamps, sorted
	lastPTS    int64
	eosQueued  bool
	formatSent bool
	events     *eventQueue
}

// NewDecoder returns an unconfigured decoder.
func NewDecoder(logger ports.Logger, opts ...Option) *Decoder {
	d := &Decoder{
		start:     StartProcess,
		numInputs: defaultInputBuffers,
		logger:    logger.WithComponent("ffmpegcodec"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InputFormat returns the ffmpeg demuxer name for an elementary stream MIME
// type.
func InputFormat(mime string) (string, error) {
	switch mime {
	case media.MIMEVideoHEVC:
		return "hevc", nil
	case media.MIMEVideoAVC:
		return "h264", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedCodec, mime)
}

// DecodeArgs returns the ffmpeg arguments that decode an Annex B stream
// from stdin into raw yuv420p10le frames on stdout.
func DecodeArgs(inputFormat string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", inputFormat,
		"-i", "pipe:0",
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p10le",
		"-fps_mode", "passthrough",
		"pipe:1",
	}
}

func (d *Decoder) SetCallback(cb ports.DecoderCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = cb
}

func (d *Decoder) Configure(format media.Format, surface ports.Surface) error {
	if _, err := InputFormat(format.MIME); err != nil {
		return err
	}
	if format.Width <= 0 || format.Height <= 0 {
		return fmt.Errorf("ffmpegcodec: invalid size %dx%d", format.Width, format.Height)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("%w: released", ErrInvalidState)
	}
	if d.started {
		return fmt.Errorf("%w: configure while executing", ErrInvalidState)
	}
	if d.cb == nil {
		return fmt.Errorf("%w: callback not set", ErrInvalidState)
	}
	if d.path == "" {
		path, err := FindFFmpeg()
		if err != nil {
			return err
		}
		d.path = path
	}

	size := max(minInputBufferSize, format.Width*format.Height)
	d.format = format
	d.surface = surface
	d.inputs = make([][]byte, d.numInputs)
	for i := range d.inputs {
		d.inputs[i] = make([]byte, size)
	}
	d.owned = make(map[int]bool)
	d.outputs = make(map[int]*media.Picture)
	d.formatSent = false
	if d.events == nil {
		d.events = newEventQueue()
		go d.events.run()
	}
	d.configured = true
	d.logger.Debug("Decoder configured: %s %dx%d", format.MIME, format.Width, format.Height)
	return nil
}

// post schedules fn on the callback goroutine. It is dropped if the decoder
// was flushed or stopped before it runs. Must hold d.mu.
func (d *Decoder) post(fn func(cb ports.DecoderCallback)) {
	epoch := d.epoch
	d.events.push(func() {
		d.mu.Lock()
		ok := d.epoch == epoch && d.started
		cb := d.cb
		d.mu.Unlock()
		if ok {
			fn(cb)
		}
	})
}

// Start launches ffmpeg and hands every input buffer to the client.
func (d *Decoder) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured || d.released {
		return fmt.Errorf("%w: not configured", ErrInvalidState)
	}
	if d.started {
		return nil
	}
	inFmt, _ := InputFormat(d.format.MIME)
	proc, err := d.start(d.path, DecodeArgs(inFmt))
	if err != nil {
		return err
	}
	d.proc = proc
	d.started = true
	d.eosQueued = false
	d.pending = d.pending[:0]
	go d.readFrames(proc, d.epoch, d.format)

	for i := range d.inputs {
		idx := i
		d.owned[idx] = true
		d.post(func(cb ports.DecoderCallback) { cb.OnInputBufferAvailable(idx) })
	}
	return nil
}

func (d *Decoder) InputBuffer(index int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.inputs) {
		return nil, fmt.Errorf("ffmpegcodec: no input buffer %d", index)
	}
	return d.inputs[index], nil
}

// QueueInputBuffer writes the buffer to ffmpeg's stdin. The write happens
// outside the lock so a busy decoder does not stall output delivery.
func (d *Decoder) QueueInputBuffer(index, offset, size int, timestampUs int64, flags media.SampleFlags) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return fmt.Errorf("%w: not started", ErrInvalidState)
	}
	if !d.owned[index] {
		d.mu.Unlock()
		return fmt.Errorf("ffmpegcodec: input buffer %d not owned by client", index)
	}
	if offset < 0 || size < 0 || offset+size > len(d.inputs[index]) {
		d.mu.Unlock()
		return fmt.Errorf("ffmpegcodec: range %d+%d outside input buffer", offset, size)
	}
	delete(d.owned, index)
	data := append([]byte(nil), d.inputs[index][offset:offset+size]...)
	eos := flags.Has(media.FlagEndOfStream)
	if size > 0 && !flags.Has(media.FlagCodecConfig) {
		pos, _ := slices.BinarySearch(d.pending, timestampUs)
		d.pending = slices.Insert(d.pending, pos, timestampUs)
	}
	if eos {
		d.eosQueued = true
	}
	proc, epoch := d.proc, d.epoch
	d.mu.Unlock()

	var err error
	if len(data) > 0 {
		if _, werr := proc.Stdin().Write(data); werr != nil {
			err = fmt.Errorf("ffmpegcodec: write input: %w", werr)
		}
	}
	if eos {
		if cerr := proc.Stdin().Close(); cerr != nil && err == nil {
			err = fmt.Errorf("ffmpegcodec: close input: %w", cerr)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if epoch != d.epoch {
		// Flushed while writing; the process was killed on purpose.
		return nil
	}
	if err != nil {
		return err
	}
	if !eos {
		d.owned[index] = true
		d.post(func(cb ports.DecoderCallback) { cb.OnInputBufferAvailable(index) })
	}
	return nil
}

// readFrames delivers decoded pictures until the process output ends.
func (d *Decoder) readFrames(proc Process, epoch int, format media.Format) {
	w, h := format.Width, format.Height
	buf := make([]byte, media.FrameSize10(w, h))
	for {
		_, err := io.ReadFull(proc.Stdout(), buf)
		if err != nil {
			waitErr := proc.Wait()
			d.finishStream(epoch, err, waitErr)
			return
		}
		pic, perr := media.ParseYUV420P10LE(buf, w, h)
		if perr != nil {
			_ = proc.Kill()
			_ = proc.Wait()
			d.finishStream(epoch, perr, nil)
			return
		}
		pic.Color = format.Color

		d.mu.Lock()
		if epoch != d.epoch {
			d.mu.Unlock()
			continue
		}
		pts := d.lastPTS
		if len(d.pending) > 0 {
			pts = d.pending[0]
			d.pending = d.pending[1:]
		}
		d.lastPTS = pts
		pic.TimestampUs = pts
		if !d.formatSent {
			d.formatSent = true
			out := format
			out.BitDepth = 10
			d.post(func(cb ports.DecoderCallback) { cb.OnOutputFormatChanged(out) })
		}
		idx := d.nextOut
		d.nextOut++
		d.outputs[idx] = pic
		info := media.BufferInfo{Size: len(buf), PresentationTimeUs: pts}
		d.post(func(cb ports.DecoderCallback) { cb.OnOutputBufferAvailable(idx, info) })
		d.mu.Unlock()
	}
}

// finishStream reports the end of a process. A clean exit after the end
// of stream was queued yields the end-of-stream buffer; anything else is a
// decode error. Killed processes from earlier epochs report nothing.
func (d *Decoder) finishStream(epoch int, readErr, waitErr error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if epoch != d.epoch {
		return
	}
	clean := errors.Is(readErr, io.EOF) && waitErr == nil
	if clean && d.eosQueued {
		idx := d.nextOut
		d.nextOut++
		d.outputs[idx] = nil
		info := media.BufferInfo{PresentationTimeUs: d.lastPTS, Flags: media.FlagEndOfStream}
		d.post(func(cb ports.DecoderCallback) { cb.OnOutputBufferAvailable(idx, info) })
		return
	}
	cause := waitErr
	if cause == nil {
		cause = readErr
	}
	err := fmt.Errorf("%w: %v", ErrDecodeFailed, cause)
	d.logger.Error("Decoder process failed: %v", err)
	d.post(func(cb ports.DecoderCallback) { cb.OnError(err) })
}

func (d *Decoder) ReleaseOutputBuffer(index int, render bool) error {
	d.mu.Lock()
	pic, ok := d.outputs[index]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("ffmpegcodec: output buffer %d not owned by client", index)
	}
	delete(d.outputs, index)
	surface := d.surface
	d.mu.Unlock()

	if !render || surface == nil || pic == nil {
		return nil
	}
	return surface.QueueBuffer(pic)
}

// halt kills the running process and drops every buffer owned before the
// call. Callbacks already queued are discarded by the epoch check. Must
// hold d.mu; returns the killed process.
func (d *Decoder) halt() Process {
	d.epoch++
	d.started = false
	proc := d.proc
	d.proc = nil
	d.owned = make(map[int]bool)
	d.outputs = make(map[int]*media.Picture)
	d.pending = d.pending[:0]
	d.eosQueued = false
	return proc
}

func (d *Decoder) Flush() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return fmt.Errorf("%w: flush while not executing", ErrInvalidState)
	}
	proc := d.halt()
	d.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	d.events.barrier()
	return nil
}

func (d *Decoder) Stop() error {
	d.mu.Lock()
	proc := d.halt()
	events := d.events
	d.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	if events != nil {
		events.barrier()
	}
	return nil
}

func (d *Decoder) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	proc := d.halt()
	events := d.events
	d.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	if events != nil {
		events.close()
	}
	return nil
}

var _ ports.VideoDecoder = (*Decoder)(nil)
