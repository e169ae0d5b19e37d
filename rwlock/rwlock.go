// Package rwlock provides a phase-fair reader-writer lock that can report
// whether a writer currently holds it.
//
// sync.RWMutex cannot be asked "is a writer inside right now", and unlocking
// it when it is not held is a fatal error. The ingestion recovery path needs
// both: it inspects writer occupancy and releases speculatively.
package rwlock

import "sync"

// RWLock admits many concurrent readers or one writer, never both.
//
// Fairness is phase based: once a writer is waiting, newly arriving readers
// queue behind it, and when a writer releases, every reader that was waiting
// at that moment is admitted before the next writer.
type RWLock struct {
	mu   sync.Mutex
	cond *sync.Cond

	readers        int
	writer         bool
	readersWaiting int
	writersWaiting int

	// readerTurn is set when a writer releases while readers are queued.
	// It stays set until the queued batch has been admitted.
	readerTurn bool
}

// New returns an unlocked RWLock.
func New() *RWLock {
	l := &RWLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// AcquireRead blocks until the lock can be held in read mode.
func (l *RWLock) AcquireRead() {
	l.mu.Lock()
	l.readersWaiting++
	for l.writer || (l.writersWaiting > 0 && !l.readerTurn) {
		l.cond.Wait()
	}
	l.readersWaiting--
	l.readers++
	if l.readersWaiting == 0 {
		l.readerTurn = false
	}
	l.mu.Unlock()
}

// ReleaseRead releases one read hold. It reports false, and changes
// nothing, when no reader holds the lock.
func (l *RWLock) ReleaseRead() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readers == 0 {
		return false
	}
	l.readers--
	if l.readers == 0 {
		l.cond.Broadcast()
	}
	return true
}

// AcquireWrite blocks until the lock can be held exclusively.
func (l *RWLock) AcquireWrite() {
	l.mu.Lock()
	l.writersWaiting++
	for l.writer || l.readers > 0 || l.readerTurn {
		l.cond.Wait()
	}
	l.writersWaiting--
	l.writer = true
	l.mu.Unlock()
}

// ReleaseWrite releases the write hold. It reports false, and changes
// nothing, when no writer holds the lock, so recovery code may call it
// speculatively.
func (l *RWLock) ReleaseWrite() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.writer {
		return false
	}
	l.writer = false
	l.readerTurn = l.readersWaiting > 0
	l.cond.Broadcast()
	return true
}

// ActiveWriters returns 1 if a writer holds the lock, otherwise 0.
func (l *RWLock) ActiveWriters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer {
		return 1
	}
	return 0
}

// ActiveReaders returns the number of read holds.
func (l *RWLock) ActiveReaders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers
}
