// Package texbridge hands decoded pictures from a decoder's producer surface
// to an external GL texture and tracks whether a new picture is pending.
package texbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/glhdr/pkg/ports"
)

// ErrDestroyed is returned by operations on a destroyed bridge.
var ErrDestroyed = errors.New("texbridge: destroyed")

// StreamTextureFactory creates stream textures bound to the current context.
// ports.EGL satisfies it.
type StreamTextureFactory interface {
	CreateStreamTexture(tex uint32) (ports.StreamTexture, error)
}

// Bridge owns one external texture and the stream texture feeding it.
//
// The frame-available signal is a channel of capacity one: any number of
// producer notifications between two consumptions collapse into a single
// pending frame. Every method except Surface, OnFrameAvailable and
// Timestamp must be called on the goroutine that owns the GL context.
type Bridge struct {
	st      ports.StreamTexture
	surface ports.Surface
	avail   chan struct{}
	logger  ports.Logger

	mu        sync.Mutex
	texture   uint32
	attached  bool
	destroyed bool
	listeners []func()
	latched   int
}

// New creates a bridge over texture, which must be an external texture of
// the current context.
func New(factory StreamTextureFactory, texture uint32, logger ports.Logger) (*Bridge, error) {
	st, err := factory.CreateStreamTexture(texture)
	if err != nil {
		return nil, fmt.Errorf("create stream texture: %w", err)
	}
	b := &Bridge{
		st:       st,
		surface:  st.Surface(),
		avail:    make(chan struct{}, 1),
		logger:   logger.WithComponent("texbridge"),
		texture:  texture,
		attached: true,
	}
	st.SetOnFrameAvailableListener(b.frameAvailable)
	return b, nil
}

// frameAvailable runs on the producer's goroutine.
func (b *Bridge) frameAvailable() {
	select {
	case b.avail <- struct{}{}:
	default:
	}

	b.mu.Lock()
	listeners := append([]func(){}, b.listeners...)
	b.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Surface returns the producer surface a decoder should render into.
func (b *Bridge) Surface() ports.Surface {
	return b.surface
}

// Texture returns the external texture name the bridge currently feeds.
func (b *Bridge) Texture() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.texture
}

// OnFrameAvailable registers fn to run on the producer's goroutine each
// time a picture is queued. fn must not block.
func (b *Bridge) OnFrameAvailable(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// SetTextureSize sets the buffer size producers should allocate.
func (b *Bridge) SetTextureSize(width, height int) {
	b.st.SetDefaultBufferSize(width, height)
}

// SetDefaultBufferSize is SetTextureSize under the stream texture's name.
func (b *Bridge) SetDefaultBufferSize(width, height int) {
	b.st.SetDefaultBufferSize(width, height)
}

// AttachToContext detaches from the previous context, if any, and attaches
// to texture tex of the current one.
func (b *Bridge) AttachToContext(tex uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	if b.attached {
		if err := b.st.DetachFromGLContext(); err != nil {
			return fmt.Errorf("detach stream texture: %w", err)
		}
		b.attached = false
	}
	if err := b.st.AttachToGLContext(tex); err != nil {
		return fmt.Errorf("attach stream texture to %d: %w", tex, err)
	}
	b.attached = true
	b.texture = tex
	return nil
}

// AwaitNextFrame blocks until a frame is pending, consumes the signal and
// latches the frame into the texture. A signal whose frame an earlier latch
// already took is skipped. It returns ctx.Err() if ctx ends first, leaving
// the signal untouched.
func (b *Bridge) AwaitNextFrame(ctx context.Context) error {
	for {
		select {
		case <-b.avail:
		case <-ctx.Done():
			return ctx.Err()
		}
		latched, err := b.update()
		if err != nil || latched {
			return err
		}
	}
}

// ConsumeIfAvailable latches the pending frame, if any, and reports whether
// it did. Without a pending frame it changes nothing.
func (b *Bridge) ConsumeIfAvailable() (bool, error) {
	select {
	case <-b.avail:
	default:
		return false, nil
	}
	return b.update()
}

// update latches the queued buffer. A signal can outlive its buffer when a
// second queue coalesced into a latch that already ran.
func (b *Bridge) update() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return false, ErrDestroyed
	}
	latched, err := b.st.UpdateTexImage()
	if err != nil {
		return false, fmt.Errorf("update tex image: %w", err)
	}
	if !latched {
		return false, nil
	}
	b.latched++
	b.logger.Debug("Latched frame at %d ns", b.st.Timestamp())
	return true, nil
}

// TransformMatrix writes the sampling transform of the most recently
// latched frame. Before the first latch it is the identity.
func (b *Bridge) TransformMatrix(out *[16]float32) {
	b.st.TransformMatrix(out)
}

// Timestamp returns the presentation time of the latched frame in ns.
func (b *Bridge) Timestamp() int64 {
	return b.st.Timestamp()
}

// Latched returns how many frames were latched into the texture.
func (b *Bridge) Latched() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latched
}

// Destroy deletes the texture and releases the surface and the stream
// texture. Later calls do nothing.
func (b *Bridge) Destroy(gl ports.GL) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.listeners = nil
	gl.DeleteTextures(b.texture)
	b.surface.Release()
	b.st.Release()
}
