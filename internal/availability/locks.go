package availability

import "sync"

// dateLocks serializes mutations per date.
type dateLocks struct {
	mu    sync.Mutex
	locks map[string]*dateLock
}

type dateLock struct {
	mu      sync.Mutex
	waiters int
}

// lock blocks until date is free and returns its unlock func.
func (d *dateLocks) lock(date string) func() {
	d.mu.Lock()
	if d.locks == nil {
		d.locks = make(map[string]*dateLock)
	}
	l, ok := d.locks[date]
	if !ok {
		l = &dateLock{}
		d.locks[date] = l
	}
	l.waiters++
	d.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		d.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(d.locks, date)
		}
		d.mu.Unlock()
	}
}
