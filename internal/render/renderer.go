// Package render produces an offline preview movie of the timeline:
// every frame is composited in memory and streamed as raw RGBA into an
// encoder process.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/clipforge/clipforge-agent/internal/compositor"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/project"
)

type Options struct {
	OutputPath string
	// FPS, Width and Height default to the project's values.
	FPS    int
	Width  int
	Height int
}

type Renderer struct {
	store   *project.Store
	catalog *media.Catalog
	logger  *slog.Logger
	workers int
}

func NewRenderer(store *project.Store, catalog *media.Catalog, logger *slog.Logger) *Renderer {
	return &Renderer{store: store, catalog: catalog, logger: logger}
}

// SetWorkers overrides the auto-sized compositing pool. Tests pin it.
func (r *Renderer) SetWorkers(n int) {
	r.workers = n
}

// Render composites the whole timeline and streams it into the
// encoder. Frames are rendered by a worker pool but always delivered
// to the encoder in presentation order.
func (r *Renderer) Render(ctx context.Context, enc Encoder, opts Options) (int, error) {
	p := r.store.Snapshot()

	fps := opts.FPS
	if fps <= 0 {
		fps = p.FPS
	}
	if fps <= 0 {
		fps = 30
	}
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		width, height = p.Width, p.Height
	}
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("render: no canvas dimensions")
	}
	if p.Duration <= 0 {
		return 0, fmt.Errorf("render: empty timeline")
	}

	frameCount := int(math.Ceil(p.Duration * float64(fps)))
	workers := r.workerCount(width, height)

	sink, err := enc.Start(ctx, width, height, fps, opts.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("start encoder: %w", err)
	}

	if r.logger != nil {
		r.logger.Info("render started",
			"frames", frameCount,
			"fps", fps,
			"size", fmt.Sprintf("%dx%d", width, height),
			"workers", workers,
		)
	}

	comp := compositor.NewCompositor(r.store, r.catalog, r.logger)

	type slot struct {
		index int
		done  chan struct{}
		pix   []byte
	}

	slots := make(chan *slot, workers)
	g, ctx := errgroup.WithContext(ctx)

	// Producer: hand out frames in order.
	pending := make(chan *slot, workers)
	g.Go(func() error {
		defer close(slots)
		defer close(pending)
		for i := 0; i < frameCount; i++ {
			s := &slot{index: i, done: make(chan struct{})}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case pending <- s:
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case slots <- s:
			}
		}
		return nil
	})

	// Workers: composite frames into their slots.
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for s := range pending {
				canvas := compositor.NewImageCanvas(width, height)
				comp.RenderFrame(ctx, canvas, float64(s.index)/float64(fps))
				s.pix = canvas.Image().Pix
				close(s.done)
			}
			return nil
		})
	}

	// Writer: deliver in order.
	written := 0
	g.Go(func() error {
		for s := range slots {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.done:
			}
			if _, err := sink.Write(s.pix); err != nil {
				return fmt.Errorf("write frame %d: %w", s.index, err)
			}
			written++
		}
		return sink.Close()
	})

	if err := g.Wait(); err != nil {
		enc.Wait()
		return written, err
	}
	if err := enc.Wait(); err != nil {
		return written, fmt.Errorf("encoder: %w", err)
	}

	if r.logger != nil {
		r.logger.Info("render finished", "frames", written, "output", opts.OutputPath)
	}
	return written, nil
}

// workerCount sizes the compositing pool from host CPU count, backing
// off when available memory cannot hold the in-flight frame buffers.
func (r *Renderer) workerCount(width, height int) int {
	if r.workers > 0 {
		return r.workers
	}

	workers := 2
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		workers = n
	}
	if workers > 8 {
		workers = 8
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		frameBytes := uint64(width * height * 4)
		// Each worker holds roughly two frames in flight.
		for workers > 1 && frameBytes*uint64(workers)*2 > vm.Available/4 {
			workers--
		}
	}
	return workers
}
