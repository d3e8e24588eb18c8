package pipeline

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"b2pc/internal/services"
)

// guard rejects a second run on a destination already held in this process,
// whatever Session started it.
type guard struct {
	mu     sync.Mutex
	active map[string]Operation
}

var runs = newGuard()

func newGuard() *guard {
	return &guard{active: make(map[string]Operation)}
}

func (g *guard) acquire(dest string, op Operation) (func(), error) {
	key := destKey(dest)
	g.mu.Lock()
	defer g.mu.Unlock()
	if running, ok := g.active[key]; ok {
		return nil, services.Wrap(services.ErrRunInProgress, string(op), "acquire",
			fmt.Sprintf("%s is already running on %s", running, dest), nil)
	}
	g.active[key] = op
	return func() {
		g.mu.Lock()
		delete(g.active, key)
		g.mu.Unlock()
	}, nil
}

// LockFile is the advisory lock every run holds in its destination. One file
// covers all operations, so two processes never write the same destination.
const LockFile = ".b2pc.lock"

// acquireLock takes the cross-process advisory lock for dest on behalf of op.
func acquireLock(dest string, op Operation) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(dest, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrInsufficientPermissions, string(op), "acquire lock", lock.Path(), err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrRunInProgress, string(op), "acquire lock",
			fmt.Sprintf("%s is held by another process", lock.Path()), nil)
	}
	return lock, nil
}

func destKey(dest string) string {
	if abs, err := filepath.Abs(dest); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(dest)
}
