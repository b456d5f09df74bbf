package softgl

import (
	"sync"

	"github.com/user/glhdr/pkg/media"
	"github.com/user/glhdr/pkg/ports"
)

var identity = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// StreamTexture is a single-slot buffer queue consumed by an external
// texture. A buffer queued before the previous one was latched replaces it.
type StreamTexture struct {
	display  *Display
	producer *producer

	mu       sync.Mutex
	ctx      *Context
	tex      uint32
	attached bool
	released bool
	detached bool
	pending  *media.Picture
	latched  *media.Picture
	listener func()
	defaultW int
	defaultH int
	matrix   [16]float32
	stamp    int64
	dropped  int
}

func newStreamTexture(d *Display, ctx *Context, tex uint32) *StreamTexture {
	st := &StreamTexture{
		display:  d,
		ctx:      ctx,
		tex:      tex,
		attached: true,
		matrix:   identity,
	}
	st.producer = &producer{st: st}
	return st
}

// Surface returns the producer endpoint. Every call returns the same one.
func (st *StreamTexture) Surface() ports.Surface {
	return st.producer
}

// SetDefaultBufferSize records the size producers should allocate.
func (st *StreamTexture) SetDefaultBufferSize(width, height int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.defaultW, st.defaultH = width, height
}

// DefaultBufferSize returns the size set by SetDefaultBufferSize.
func (st *StreamTexture) DefaultBufferSize() (int, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.defaultW, st.defaultH
}

// SetOnFrameAvailableListener registers fn, called on the producer's
// goroutine after every queued buffer.
func (st *StreamTexture) SetOnFrameAvailableListener(fn func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.listener = fn
}

// AttachToGLContext attaches to texture tex of the current context.
func (st *StreamTexture) AttachToGLContext(tex uint32) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.attached {
		return ErrAlreadyAttached
	}
	c := st.display.currentContext()
	if c == nil {
		return ErrNotCurrent
	}
	if !c.hasTexture(tex) {
		return ErrBadTexture
	}
	st.ctx = c
	st.tex = tex
	st.attached = true
	if st.latched != nil {
		return c.setExternalImage(tex, st.latched)
	}
	return nil
}

// DetachFromGLContext detaches from the current context. The texture
// object itself stays owned by its creator.
func (st *StreamTexture) DetachFromGLContext() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.attached {
		return ErrNotAttached
	}
	if st.display.currentContext() != st.ctx {
		return ErrNotCurrent
	}
	st.attached = false
	st.ctx = nil
	st.tex = 0
	return nil
}

// UpdateTexImage latches the most recently queued buffer and reports
// whether there was one. With nothing queued the previous image stays
// latched.
func (st *StreamTexture) UpdateTexImage() (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.released {
		return false, ErrAbandoned
	}
	if !st.attached {
		return false, ErrNotAttached
	}
	if st.display.currentContext() != st.ctx {
		return false, ErrNotCurrent
	}
	if st.pending == nil {
		return false, nil
	}
	pic := st.pending
	st.pending = nil
	if err := st.ctx.setExternalImage(st.tex, pic); err != nil {
		return false, err
	}
	st.latched = pic
	st.stamp = pic.TimestampUs * 1000
	st.matrix = cropTransform(pic)
	return true, nil
}

// cropTransform maps quad texture coordinates onto the crop rectangle of
// pic, flipping vertically so the first row lands at the top of the quad.
func cropTransform(pic *media.Picture) [16]float32 {
	crop := pic.Crop
	if crop.Empty() {
		crop.Max.X, crop.Max.Y = pic.Width, pic.Height
	}
	w, h := float32(pic.Width), float32(pic.Height)
	sx := float32(crop.Dx()) / w
	sy := float32(crop.Dy()) / h
	tx := float32(crop.Min.X) / w
	ty := float32(crop.Min.Y) / h

	m := identity
	m[0] = sx
	m[5] = -sy
	m[12] = tx
	m[13] = ty + sy
	return m
}

// TransformMatrix writes the sampling transform of the latched buffer.
func (st *StreamTexture) TransformMatrix(m *[16]float32) {
	st.mu.Lock()
	defer st.mu.Unlock()
	*m = st.matrix
}

// Timestamp returns the presentation time of the latched buffer in ns.
func (st *StreamTexture) Timestamp() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stamp
}

// Dropped returns how many queued buffers were replaced before being latched.
func (st *StreamTexture) Dropped() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dropped
}

// Release abandons the queue. Later queue attempts fail with ErrAbandoned.
func (st *StreamTexture) Release() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.released = true
	st.attached = false
	st.pending = nil
	st.listener = nil
}

func (st *StreamTexture) queue(pic *media.Picture) error {
	st.mu.Lock()
	if st.released {
		st.mu.Unlock()
		return ErrAbandoned
	}
	if st.detached {
		st.mu.Unlock()
		return ErrProducerReleased
	}
	if st.pending != nil {
		st.dropped++
	}
	st.pending = pic
	fn := st.listener
	st.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// producer is the Surface end of a StreamTexture.
type producer struct {
	st *StreamTexture
}

func (p *producer) QueueBuffer(pic *media.Picture) error {
	return p.st.queue(pic)
}

// Release disconnects the producer. Later QueueBuffer calls fail with
// ErrProducerReleased. A buffer queued before stays latchable.
func (p *producer) Release() {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	p.st.detached = true
}

var (
	_ ports.StreamTexture = (*StreamTexture)(nil)
	_ ports.Surface       = (*producer)(nil)
)
