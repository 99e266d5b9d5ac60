package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueGenerateVideo = "queue:generate_video"

	// leaseTTL bounds how long a dead worker can hold a job before its
	// lease expires. Long enough to cover the slowest realistic job.
	leaseTTL = 30 * time.Minute
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// EnqueueGenerateVideo enqueues a video generation job.
func (q *Queue) EnqueueGenerateVideo(ctx context.Context, jobID, projectID uuid.UUID) error {
	job := &Job{
		ID:        jobID,
		ProjectID: projectID,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, QueueGenerateVideo, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueGenerateVideo).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueGenerateVideo).Result()
}

// AcquireJobLease takes the per-job processing lock. A given job id has
// at most one worker actively processing it; a duplicate enqueue (or a
// second worker racing on the same message) observes the lease and skips.
// Returns false when another worker already holds the lease.
func (q *Queue) AcquireJobLease(ctx context.Context, jobID uuid.UUID, workerID string) (bool, error) {
	ok, err := q.client.SetNX(ctx, leaseKey(jobID), workerID, leaseTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire job lease: %w", err)
	}
	return ok, nil
}

// ReleaseJobLease drops the per-job lock. Only the holder releases: the
// stored worker id is checked so an expired-and-reacquired lease is not
// deleted by the previous holder.
func (q *Queue) ReleaseJobLease(ctx context.Context, jobID uuid.UUID, workerID string) error {
	holder, err := q.client.Get(ctx, leaseKey(jobID)).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return fmt.Errorf("failed to read job lease: %w", err)
	}
	if holder != workerID {
		return nil
	}
	return q.client.Del(ctx, leaseKey(jobID)).Err()
}

func leaseKey(jobID uuid.UUID) string {
	return "lock:job:" + jobID.String()
}
