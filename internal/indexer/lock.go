package indexer

import "sync"

// BuildLock tracks which project roots are currently being built so that a
// second build of the same root can be rejected instead of racing on the
// cache directory.
type BuildLock struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// TryAcquire marks root as building. It returns false if a build of root is
// already in progress.
func (l *BuildLock) TryAcquire(root string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == nil {
		l.active = make(map[string]struct{})
	}
	if _, busy := l.active[root]; busy {
		return false
	}
	l.active[root] = struct{}{}
	return true
}

// Release ends the build of root.
// Must only be called by the caller that acquired root.
func (l *BuildLock) Release(root string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, root)
}

// Active reports whether root is being built
func (l *BuildLock) Active(root string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.active[root]
	return busy
}
