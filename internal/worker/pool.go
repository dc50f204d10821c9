package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"narrato-backend/internal/models"
	"narrato-backend/internal/pipeline"
	"narrato-backend/internal/repository"
	"narrato-backend/internal/services"
)

// lockTTL bounds how long a (segment, language) generation lock can be
// held; a pipeline invocation past this is presumed dead.
const lockTTL = 30 * time.Minute

// Pool consumes pipeline jobs from Redis list queues. Work runs entirely
// server-side: the HTTP request that enqueued a job is long gone by the
// time a worker picks it up, so client disconnection never cancels
// generation.
type Pool struct {
	redis       *redis.Client
	pipe        *pipeline.Pipeline
	jobRepo     *repository.JobRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, pipe *pipeline.Pipeline, jobRepo *repository.JobRepo, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		pipe:        pipe,
		jobRepo:     jobRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

var queues = []string{
	"queue:" + models.JobTypeComposite,
	"queue:" + models.JobTypeCompositeTranslated,
	"queue:" + models.JobTypeAudio,
	"queue:" + models.JobTypeSilentVideo,
	"queue:" + models.JobTypeFinalVideo,
}

func QueueName(jobType string) string {
	return "queue:" + jobType
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 30*time.Second, queues...).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// At most one in-flight invocation per (segment, language). A
		// duplicate is queued behind the lock, not raced.
		lockKeys := lockKeysFor(&job)
		if !p.acquireLocks(ctx, lockKeys, job.ID.String()) {
			p.requeueLater(&job, 10*time.Second)
			continue
		}

		log.Printf("Worker %d: processing job %s (type: %s, segment: %s, lang: %s)", id, job.ID, job.Type, job.SegmentID, job.Language)

		p.jobRepo.UpdateStatus(ctx, job.ID, "processing")

		artifactURL, processErr := p.dispatch(ctx, &job)

		if processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job, artifactURL)
		}

		p.releaseLocks(ctx, lockKeys)
	}
}

func (p *Pool) dispatch(ctx context.Context, job *models.Job) (string, error) {
	switch job.Type {
	case models.JobTypeAudio:
		return p.pipe.GenerateAudio(ctx, job.SegmentID, job.Language)
	case models.JobTypeSilentVideo:
		return p.pipe.GenerateSilentVideo(ctx, job.SegmentID)
	case models.JobTypeFinalVideo:
		return p.pipe.GenerateFinalVideo(ctx, job.SegmentID, job.Language)
	case models.JobTypeComposite:
		return p.pipe.GenerateComposite(ctx, job.SegmentID, job.Language)
	case models.JobTypeCompositeTranslated:
		return p.pipe.GenerateTranslatedComposite(ctx, job.SegmentID)
	default:
		return "", fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, artifactURL string) {
	p.jobRepo.UpdateResult(ctx, job.ID, artifactURL)
	p.jobRepo.UpdateStatus(ctx, job.ID, "completed")

	p.publish(ctx, job.SegmentID.String(), models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			SegmentID:   job.SegmentID,
			Language:    job.Language,
			ArtifactURL: artifactURL,
		},
	})

	log.Printf("Job %s completed successfully", job.ID)
}

// handleFailure re-queues only transient failures; validation, quota,
// policy, and timeout errors are final for the attempt.
func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if services.IsTransient(err) && job.RetryCount < job.MaxRetries {
		log.Printf("Job %s failed (attempt %d): %s — retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "queued")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		p.requeueLater(job, backoff)
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
	p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

	p.publish(ctx, job.SegmentID.String(), models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			SegmentID:    job.SegmentID,
			Language:     job.Language,
			ErrorCode:    errorCode(err),
			ErrorMessage: errMsg,
		},
	})
}

func (p *Pool) requeueLater(job *models.Job, delay time.Duration) {
	jobBytes, _ := json.Marshal(job)
	queue := QueueName(job.Type)
	time.AfterFunc(delay, func() {
		p.redis.RPush(context.Background(), queue, string(jobBytes))
	})
}

func (p *Pool) publish(ctx context.Context, segmentID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	p.redis.Publish(ctx, "segment_updates:"+segmentID, data)
}

// lockKeysFor returns every lock a job must hold before running. The
// silent video artifact is shared across languages, so composite jobs,
// which may regenerate it, take the shared key on top of their language
// key; two composites for different languages then serialize on it.
func lockKeysFor(job *models.Job) []string {
	base := fmt.Sprintf("generation_lock:%s:", job.SegmentID)
	switch job.Type {
	case models.JobTypeSilentVideo:
		return []string{base + "shared"}
	case models.JobTypeComposite, models.JobTypeCompositeTranslated:
		return []string{base + string(job.Language), base + "shared"}
	default:
		return []string{base + string(job.Language)}
	}
}

// acquireLocks takes all keys or none: a partial acquisition is rolled
// back so the holder of the remaining key can finish.
func (p *Pool) acquireLocks(ctx context.Context, keys []string, owner string) bool {
	for i, key := range keys {
		locked, err := p.redis.SetNX(ctx, key, owner, lockTTL).Result()
		if err != nil || !locked {
			p.releaseLocks(ctx, keys[:i])
			return false
		}
	}
	return true
}

func (p *Pool) releaseLocks(ctx context.Context, keys []string) {
	for _, key := range keys {
		p.redis.Del(ctx, key)
	}
}

func errorCode(err error) string {
	var (
		validationErr *services.ValidationError
		quotaErr      *services.QuotaError
		timeoutErr    *services.TimeoutError
		notFoundErr   *services.NotFoundError
	)
	switch {
	case services.IsContentPolicy(err):
		return "CONTENT_POLICY"
	case services.IsTransient(err):
		return "TRANSIENT"
	case errors.As(err, &validationErr):
		return "VALIDATION_ERROR"
	case errors.As(err, &quotaErr):
		return "QUOTA_EXHAUSTED"
	case errors.As(err, &timeoutErr):
		return "GENERATION_TIMEOUT"
	case errors.As(err, &notFoundErr):
		return "NOT_FOUND"
	default:
		return "JOB_FAILED"
	}
}
