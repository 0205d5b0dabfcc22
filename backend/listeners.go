package backend

import "sync"

type listener struct {
	id uint64
	fn func(AuthChange)
}

// Listeners is a registry of auth state listeners keyed by access token.
type Listeners struct {
	mu     sync.Mutex
	nextID uint64
	byKey  map[string][]listener
}

func NewListeners() *Listeners {
	return &Listeners{byKey: make(map[string][]listener)}
}

// Add registers fn under key. first is true when key had no listeners before.
func (l *Listeners) Add(key string, fn func(AuthChange)) (remove func() (last bool), first bool) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	first = len(l.byKey[key]) == 0
	l.byKey[key] = append(l.byKey[key], listener{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	remove = func() bool {
		var wasLast bool
		once.Do(func() {
			wasLast = l.remove(key, id)
		})
		return wasLast
	}
	return remove, first
}

func (l *Listeners) remove(key string, id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.byKey[key]
	for i, ln := range current {
		if ln.id == id {
			current = append(current[:i:i], current[i+1:]...)
			break
		}
	}
	if len(current) == 0 {
		delete(l.byKey, key)
		return true
	}
	l.byKey[key] = current
	return false
}

// Notify calls every listener registered under key. Listeners run outside the
// registry lock so they may unsubscribe from inside the callback.
func (l *Listeners) Notify(key string, change AuthChange) {
	l.mu.Lock()
	snapshot := append([]listener(nil), l.byKey[key]...)
	l.mu.Unlock()
	for _, ln := range snapshot {
		ln.fn(change)
	}
}

// Count returns the total number of registered listeners.
func (l *Listeners) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ls := range l.byKey {
		n += len(ls)
	}
	return n
}
