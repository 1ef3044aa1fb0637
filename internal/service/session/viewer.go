package session

import (
	"sync"
	"time"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/observability/metrics"
)

// Viewer is one registered connection's view of the session. Each viewer
// drains its own bounded outbound queue, so a slow projector never
// blocks delivery to the others.
type Viewer struct {
	ID   string
	Role models.ViewerRole

	queue     chan []byte
	closeOnce sync.Once

	// lastSeen is owned by the session loop.
	lastSeen time.Time
}

func newViewer(id string, role models.ViewerRole, queueSize int) *Viewer {
	return &Viewer{
		ID:       id,
		Role:     role,
		queue:    make(chan []byte, queueSize),
		lastSeen: time.Now(),
	}
}

// Outbound returns the frames to deliver to this viewer. The channel is
// closed when the viewer is removed from the session.
func (v *Viewer) Outbound() <-chan []byte {
	return v.queue
}

// send enqueues a frame, dropping the oldest queued frame on overflow.
// Called only from the session loop, which is the sole producer.
func (v *Viewer) send(frame []byte, m *metrics.Metrics) {
	select {
	case v.queue <- frame:
		return
	default:
	}

	select {
	case <-v.queue:
		m.RecordQueueDrop()
	default:
	}
	select {
	case v.queue <- frame:
	default:
		m.RecordQueueDrop()
	}
}

// close ends the outbound stream. Idempotent.
func (v *Viewer) close() {
	v.closeOnce.Do(func() {
		close(v.queue)
	})
}
