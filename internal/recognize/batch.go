package recognize

import (
	"context"
	"image"
	"time"

	"github.com/your-org/faceguard/internal/embedding"
)

// CoalesceWindow is the batching window used by Batcher, per spec.md's
// B_max/20ms embedding-batching requirement.
const CoalesceWindow = 20 * time.Millisecond

type embedJob struct {
	crop     image.Image
	leftEye  [2]float32
	rightEye [2]float32
	resultCh chan embedResult
}

type embedResult struct {
	emb embedding.Embedding
	err error
}

// Batcher serializes concurrent Extract calls against a single Embedder.
// The ONNX session behind Embedder is not safe for concurrent Run calls
// (it has one fixed-shape input tensor); Batcher plays the same role the
// teacher's consumer.go fetch-loop plays for NATS messages — coalesce
// many arrivals, drain up to BatchMax at a time, and keep one worker
// owning the shared resource — generalized here from message batching to
// inference-session batching.
type Batcher struct {
	embedder *Embedder
	jobs     chan embedJob
	done     chan struct{}
	batchMax int
}

// NewBatcher starts the background worker. batchMax bounds how many
// queued jobs are drained per window before yielding, so a burst cannot
// starve the window's latency guarantee indefinitely.
func NewBatcher(embedder *Embedder, batchMax int) *Batcher {
	if batchMax <= 0 {
		batchMax = 8
	}
	b := &Batcher{
		embedder: embedder,
		jobs:     make(chan embedJob, batchMax*4),
		done:     make(chan struct{}),
		batchMax: batchMax,
	}
	go b.run()
	return b
}

func (b *Batcher) run() {
	ticker := time.NewTicker(CoalesceWindow)
	defer ticker.Stop()

	var pending []embedJob
	for {
		select {
		case <-b.done:
			b.drain(pending)
			return
		case job := <-b.jobs:
			pending = append(pending, job)
			if len(pending) >= b.batchMax {
				b.drain(pending)
				pending = nil
			}
		case <-ticker.C:
			if len(pending) > 0 {
				b.drain(pending)
				pending = nil
			}
		}
	}
}

func (b *Batcher) drain(jobs []embedJob) {
	for _, job := range jobs {
		emb, err := b.embedder.Extract(job.crop, job.leftEye, job.rightEye)
		job.resultCh <- embedResult{emb: emb, err: err}
	}
}

// Submit enqueues a crop for embedding and blocks until its turn in a
// batch window completes, or ctx is done.
func (b *Batcher) Submit(ctx context.Context, crop image.Image, leftEye, rightEye [2]float32) (embedding.Embedding, error) {
	resultCh := make(chan embedResult, 1)
	job := embedJob{crop: crop, leftEye: leftEye, rightEye: rightEye, resultCh: resultCh}

	select {
	case b.jobs <- job:
	case <-ctx.Done():
		return embedding.Embedding{}, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.emb, res.err
	case <-ctx.Done():
		return embedding.Embedding{}, ctx.Err()
	}
}

// Close stops the background worker after draining any pending jobs.
func (b *Batcher) Close() {
	close(b.done)
}
