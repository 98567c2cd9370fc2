package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/engine/md5"
	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/formats"
)

// DefaultWorkers is the loader pool size used when none is configured.
const DefaultWorkers = 4

// PendingClip is a clip that becomes available once a background parse
// finishes. It is safe to poll from the simulation goroutine while a worker
// fills it in.
type PendingClip struct {
	path string

	mu   sync.RWMutex
	clip *md5.Clip
	err  error
	done chan struct{}
	once sync.Once
}

func newPendingClip(path string) *PendingClip {
	return &PendingClip{path: path, done: make(chan struct{})}
}

// Path returns the resolved clip path.
func (p *PendingClip) Path() string { return p.path }

// Loaded reports whether a clip is available.
func (p *PendingClip) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clip != nil
}

// Clip returns the latest parsed clip, or nil.
func (p *PendingClip) Clip() *md5.Clip {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clip
}

// Err returns the error of the latest parse, if it failed.
func (p *PendingClip) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Done is closed when the first parse attempt finishes.
func (p *PendingClip) Done() <-chan struct{} { return p.done }

// Wait blocks until the first parse attempt finishes and returns its error.
func (p *PendingClip) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// set records a parse result. A failed reload keeps the previous clip.
func (p *PendingClip) set(clip *md5.Clip, err error) {
	p.mu.Lock()
	if clip != nil {
		p.clip = clip
	}
	p.err = err
	p.mu.Unlock()
	p.once.Do(func() { close(p.done) })
}

// Loader parses clips on a worker pool. Requests for the same file share one
// PendingClip.
type Loader struct {
	manager *Manager
	pool    worker.DynamicWorkerPool

	mu      sync.Mutex
	pending map[string]*PendingClip
	taskID  int
	wg      sync.WaitGroup

	log *zap.Logger
}

// NewLoader creates a loader reading through manager with the given number
// of workers.
func NewLoader(manager *Manager, workers int) *Loader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Loader{
		manager: manager,
		pool:    worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
		pending: make(map[string]*PendingClip),
		log:     logger.Named("assets"),
	}
}

// Manager returns the loader's asset manager.
func (l *Loader) Manager() *Manager { return l.manager }

// LoadClip starts loading a clip and returns immediately. A path that does
// not resolve yields a PendingClip that is already done with the error.
func (l *Loader) LoadClip(path string) *PendingClip {
	resolved, err := l.manager.Resolve(path)
	if err != nil {
		p := newPendingClip(path)
		l.log.Error("clip load failed", zap.String("path", path), zap.Error(err))
		p.set(nil, err)
		return p
	}

	l.mu.Lock()
	if p, ok := l.pending[resolved]; ok {
		l.mu.Unlock()
		return p
	}
	p := newPendingClip(resolved)
	l.pending[resolved] = p
	l.mu.Unlock()

	l.submit(p)
	return p
}

// Reload re-parses a previously requested clip and swaps it in place. It
// reports whether the path was known.
func (l *Loader) Reload(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	l.mu.Lock()
	p, ok := l.pending[path]
	l.mu.Unlock()
	if !ok {
		return false
	}

	l.manager.Invalidate(path)
	l.submit(p)
	return true
}

// Wait blocks until every submitted parse has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

func (l *Loader) submit(p *PendingClip) {
	l.mu.Lock()
	id := l.taskID
	l.taskID++
	l.mu.Unlock()

	l.wg.Add(1)
	l.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			defer l.wg.Done()
			clip, err := l.parseClip(p.path)
			if err != nil {
				l.log.Error("clip load failed", zap.String("path", p.path), zap.Error(err))
			} else {
				l.log.Debug("clip loaded",
					zap.String("path", p.path),
					zap.Int("frames", clip.FrameCount()),
					zap.Int("joints", clip.JointCount()))
			}
			p.set(clip, err)
			return clip, err
		},
	})
}

func (l *Loader) parseClip(path string) (*md5.Clip, error) {
	data, err := l.manager.Load(path)
	if err != nil {
		return nil, err
	}
	anim, err := formats.ParseMD5Anim(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return md5.NewClip(ClipName(path), anim)
}

// LoadMesh reads and prepares a mesh synchronously.
func (l *Loader) LoadMesh(path string, maxWeights int) (*md5.Mesh, error) {
	data, err := l.manager.Load(path)
	if err != nil {
		return nil, err
	}
	src, err := formats.ParseMD5Mesh(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return md5.NewMesh(src, maxWeights)
}

// ClipName derives a clip name from its file name.
func ClipName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
