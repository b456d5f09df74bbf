package orchestrator

import (
	"errors"
	"fmt"

	"github.com/user/glhdr/pkg/framesource"
	"github.com/user/glhdr/pkg/ports"
	"github.com/user/glhdr/pkg/render"
	"github.com/user/glhdr/pkg/shader"
	"github.com/user/glhdr/pkg/texbridge"
)

// glState is the GL-side state of a session: the external texture, the
// bridge feeding it and the shader pipeline sampling it. Every method runs
// on the renderer's GL goroutine.
type glState struct {
	logger   ports.Logger
	bridge   *texbridge.Bridge
	pipeline *shader.Pipeline
	matrix   [16]float32
}

func (g *glState) OnContextCreated(egl ports.EGL, gl ports.GL) error {
	tex, err := shader.CreateExternalTexture(gl)
	if err != nil {
		return err
	}
	b, err := texbridge.New(egl, tex, g.logger)
	if err != nil {
		gl.DeleteTextures(tex)
		return err
	}
	g.bridge = b
	return nil
}

func (g *glState) OnContextDestroyed(gl ports.GL) {
	if g.pipeline != nil {
		g.pipeline.Release()
		g.pipeline = nil
	}
	if g.bridge != nil {
		g.bridge.Destroy(gl)
	}
}

func (g *glState) buildPipeline(gl ports.GL, variant shader.Variant) error {
	p, err := shader.New(gl, variant, g.bridge.Texture())
	if err != nil {
		return err
	}
	g.pipeline = p
	return nil
}

// DrawFrame latches the pending frame, if any, and draws the texture. With
// two targets the second draw reuses the frame the first one latched.
func (g *glState) DrawFrame(gl ports.GL, width, height int) error {
	if _, err := g.bridge.ConsumeIfAvailable(); err != nil {
		return err
	}
	g.bridge.TransformMatrix(&g.matrix)
	return g.pipeline.Draw(width, height, &g.matrix)
}

// run holds what a Session.Run acquired, in acquisition order. The
// extractor and decoder pass to the source once it exists.
type run struct {
	ext      ports.Extractor
	dec      ports.VideoDecoder
	gl       *glState
	renderer *render.Renderer
	source   *framesource.Source
	encoder  *render.RenderTarget
	preview  *render.RenderTarget
	ended    bool

	recorder         ports.Recorder
	recorderPrepared bool
	recorderStarted  bool

	closed bool
}

// close releases everything in reverse acquisition order. Pending draws
// reach the targets before the recorder finalizes its output, and the
// recorder is stopped and released at most once. Later calls do nothing.
func (r *run) close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.source != nil {
		if err := r.source.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy source: %w", err))
		}
	} else if r.ext != nil {
		if err := r.ext.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release extractor: %w", err))
		}
		if err := r.dec.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release decoder: %w", err))
		}
	}
	if r.renderer != nil {
		// Draws queued by the last frames run before this no-op task.
		err := r.renderer.Do(func(ports.EGL, ports.GL) error { return nil })
		if err != nil && !errors.Is(err, render.ErrRendererStopped) {
			r.gl.logger.Warn("Draining renderer failed: %v", err)
		}
		if err := r.renderer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop renderer: %w", err))
		}
	}
	if r.recorderStarted {
		if err := r.recorder.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop recorder: %w", err))
		}
	}
	if r.recorderPrepared {
		if err := r.recorder.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release recorder: %w", err))
		}
	}
	return errors.Join(errs...)
}
