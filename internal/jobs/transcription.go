// Package jobs runs background work that must not block webhook
// responses. Currently that is voicemail transcription: the recording URL
// arrives on the webhook, the text lands on the lead when ready.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/leadline/pkg/logging"
)

// Transcriber turns a recording URL into text. Implementations call an
// external speech-to-text service.
type Transcriber interface {
	Transcribe(ctx context.Context, recordingURL string) (string, error)
}

type voicemailStore interface {
	AttachVoicemail(ctx context.Context, tenantID uuid.UUID, phone, url, transcript string) error
}

// TranscriptionJob is one queued recording.
type TranscriptionJob struct {
	TenantID     uuid.UUID
	Phone        string
	RecordingURL string
}

// Pool fans transcription jobs out to a fixed set of workers. Submit
// never blocks; a full queue drops the job, leaving the lead with the
// recording URL but no transcript.
type Pool struct {
	jobs        chan TranscriptionJob
	transcriber Transcriber
	leads       voicemailStore
	workers     int
	timeout     time.Duration
	logger      *logging.Logger
	wg          sync.WaitGroup
}

func NewPool(transcriber Transcriber, leads voicemailStore, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{
		jobs:        make(chan TranscriptionJob, 64),
		transcriber: transcriber,
		leads:       leads,
		workers:     2,
		timeout:     60 * time.Second,
		logger:      logger.Component("jobs"),
	}
}

// WithWorkers sets the worker count.
func (p *Pool) WithWorkers(n int) *Pool {
	if n > 0 {
		p.workers = n
	}
	return p
}

// WithQueueDepth sets the job buffer size. Only valid before Run.
func (p *Pool) WithQueueDepth(n int) *Pool {
	if n > 0 {
		p.jobs = make(chan TranscriptionJob, n)
	}
	return p
}

// Submit queues a recording for transcription. Returns false when the
// pool is saturated or has no transcriber configured.
func (p *Pool) Submit(tenantID uuid.UUID, phone, recordingURL string) bool {
	if p == nil || p.transcriber == nil {
		return false
	}
	select {
	case p.jobs <- TranscriptionJob{TenantID: tenantID, Phone: phone, RecordingURL: recordingURL}:
		return true
	default:
		p.logger.Warn("transcription queue full, dropping job", "phone", phone)
		return false
	}
}

// Run starts the workers and blocks until ctx is canceled and queued
// jobs finish.
func (p *Pool) Run(ctx context.Context) {
	if p.transcriber == nil {
		p.logger.Info("no transcriber configured, pool idle")
		<-ctx.Done()
		return
	}
	p.logger.Info("transcription pool started", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	<-ctx.Done()
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("transcription pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.process(job)
	}
}

func (p *Pool) process(job TranscriptionJob) {
	// Detached from the webhook request; bounded on its own.
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	text, err := p.transcriber.Transcribe(ctx, job.RecordingURL)
	if err != nil {
		p.logger.Error("transcription failed", "error", err, "phone", job.Phone)
		return
	}
	if text == "" {
		return
	}
	if err := p.leads.AttachVoicemail(ctx, job.TenantID, job.Phone, job.RecordingURL, text); err != nil {
		p.logger.Error("attach transcript failed", "error", err, "phone", job.Phone)
		return
	}
	p.logger.Info("voicemail transcribed", "phone", job.Phone)
}
