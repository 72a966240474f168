package usecase

import (
	"sync"

	"github.com/retouchlab/eraser/internal/core/domain"
)

const watcherBuffer = 16

// progressBroker fans per-job progress updates out to any number of
// watchers. Publishing never blocks the pipeline: a watcher that falls
// behind loses intermediate updates.
type progressBroker struct {
	mu       sync.Mutex
	nextID   int
	watchers map[string]map[int]chan domain.ProcessingProgress
}

func newProgressBroker() *progressBroker {
	return &progressBroker{watchers: make(map[string]map[int]chan domain.ProcessingProgress)}
}

func (b *progressBroker) watch(jobID string) (<-chan domain.ProcessingProgress, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan domain.ProcessingProgress, watcherBuffer)
	if b.watchers[jobID] == nil {
		b.watchers[jobID] = make(map[int]chan domain.ProcessingProgress)
	}
	b.watchers[jobID][id] = ch

	stop := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.watchers[jobID]; ok {
			if _, live := set[id]; live {
				delete(set, id)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.watchers, jobID)
			}
		}
	}
	return ch, stop
}

func (b *progressBroker) publish(jobID string, p domain.ProcessingProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.watchers[jobID] {
		select {
		case ch <- p:
		default:
		}
	}
}

// finish closes every watcher channel of the job after the final update.
func (b *progressBroker) finish(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.watchers[jobID] {
		close(ch)
	}
	delete(b.watchers, jobID)
}
