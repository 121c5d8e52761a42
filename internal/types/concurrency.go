package types

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit
// is reached. The Directory source's worker pool uses this to bound
// concurrent directory reads.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent
// acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
