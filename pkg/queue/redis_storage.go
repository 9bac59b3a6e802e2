package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// rankPriorityShift packs priority and enqueue sequence into one sortable
// score: rank = priority<<40 | seq. Lower ranks pop first, giving priority
// ordering with FIFO inside each priority tier. Both factors stay well
// below the 2^53 integer precision of a Redis score.
const rankPriorityShift = 40

// Key layout, all under the configured prefix:
//
//	{p}:seq                  enqueue sequence counter
//	{p}:queues               set of known queue names
//	{p}:{queue}:pending      ZSET, score = rank
//	{p}:{queue}:delayed      ZSET, score = visible-at unix ms
//	{p}:{queue}:processing   ZSET, score = lock deadline unix ms
//	{p}:{queue}:completed    LIST of job ids, newest first
//	{p}:{queue}:failed       LIST of job ids, newest first
//	{p}:job:{id}             HASH with the job fields
//
// Scripts derive key names from the job hash, so a non-clustered Redis is
// required.
var (
	// claimScript promotes due delayed jobs, releases expired claim locks
	// without touching the attempt counter, then pops the lowest-ranked
	// pending job and locks it.
	claimScript = redis.NewScript(`
local prefix = ARGV[1]
local queue = ARGV[2]
local now = tonumber(ARGV[3])
local lockUntil = ARGV[4]
local workerID = ARGV[5]

local pending = prefix .. ':' .. queue .. ':pending'
local delayed = prefix .. ':' .. queue .. ':delayed'
local processing = prefix .. ':' .. queue .. ':processing'

local due = redis.call('ZRANGEBYSCORE', delayed, '-inf', now)
for _, id in ipairs(due) do
	local rank = redis.call('HGET', prefix .. ':job:' .. id, 'rank')
	if rank then
		redis.call('ZADD', pending, tonumber(rank), id)
		redis.call('HSET', prefix .. ':job:' .. id, 'status', 'pending')
	end
	redis.call('ZREM', delayed, id)
end

local expired = redis.call('ZRANGEBYSCORE', processing, '-inf', now)
for _, id in ipairs(expired) do
	local key = prefix .. ':job:' .. id
	local rank = redis.call('HGET', key, 'rank')
	redis.call('HSET', key, 'status', 'pending')
	redis.call('HDEL', key, 'locked_by', 'locked_until')
	if rank then
		redis.call('ZADD', pending, tonumber(rank), id)
	end
	redis.call('ZREM', processing, id)
end

local popped = redis.call('ZPOPMIN', pending)
if #popped == 0 then
	return false
end

local id = popped[1]
local key = prefix .. ':job:' .. id
redis.call('ZADD', processing, tonumber(lockUntil), id)
redis.call('HSET', key, 'status', 'processing', 'locked_by', workerID, 'locked_until', lockUntil)
return redis.call('HGETALL', key)
`)

	// completeScript finishes a job and prunes the completed list beyond
	// the retention cap, deleting pruned job hashes.
	completeScript = redis.NewScript(`
local prefix = ARGV[1]
local id = ARGV[2]
local now = ARGV[3]
local retention = tonumber(ARGV[4])

local key = prefix .. ':job:' .. id
local queue = redis.call('HGET', key, 'queue')
if not queue then
	return 'not_found'
end
local status = redis.call('HGET', key, 'status')
if status ~= 'processing' then
	return 'not_processing'
end

redis.call('ZREM', prefix .. ':' .. queue .. ':processing', id)
redis.call('HSET', key, 'status', 'completed', 'processed_at', now)
redis.call('HDEL', key, 'locked_by', 'locked_until')

local completed = prefix .. ':' .. queue .. ':completed'
redis.call('LPUSH', completed, id)
local evicted = redis.call('LRANGE', completed, retention, -1)
for _, old in ipairs(evicted) do
	redis.call('DEL', prefix .. ':job:' .. old)
end
redis.call('LTRIM', completed, 0, retention - 1)
return 'ok'
`)

	// failScript records a failed attempt. With attempts left the job is
	// re-queued into the delayed set at the retry time; otherwise, or when
	// discarding, it lands in the failed list.
	failScript = redis.NewScript(`
local prefix = ARGV[1]
local id = ARGV[2]
local errMsg = ARGV[3]
local retryAt = ARGV[4]
local now = ARGV[5]
local retention = tonumber(ARGV[6])
local discard = ARGV[7] == '1'

local key = prefix .. ':job:' .. id
local queue = redis.call('HGET', key, 'queue')
if not queue then
	return 'not_found'
end
if not discard and redis.call('HGET', key, 'status') ~= 'processing' then
	return 'not_processing'
end

redis.call('ZREM', prefix .. ':' .. queue .. ':processing', id)
redis.call('ZREM', prefix .. ':' .. queue .. ':pending', id)
redis.call('HSET', key, 'error', errMsg)
redis.call('HDEL', key, 'locked_by', 'locked_until')

local attempts = tonumber(redis.call('HGET', key, 'attempts'))
local maxAttempts = tonumber(redis.call('HGET', key, 'max_attempts'))
if not discard then
	attempts = redis.call('HINCRBY', key, 'attempts', 1)
end

if discard or attempts >= maxAttempts then
	redis.call('HSET', key, 'status', 'failed', 'processed_at', now)
	local failed = prefix .. ':' .. queue .. ':failed'
	redis.call('LPUSH', failed, id)
	local evicted = redis.call('LRANGE', failed, retention, -1)
	for _, old in ipairs(evicted) do
		redis.call('DEL', prefix .. ':job:' .. old)
	end
	redis.call('LTRIM', failed, 0, retention - 1)
	return 'failed'
end

redis.call('HSET', key, 'status', 'pending', 'visible_at', retryAt)
redis.call('ZADD', prefix .. ':' .. queue .. ':delayed', tonumber(retryAt), id)
return 'pending'
`)

	statsScript = redis.NewScript(`
local prefix = ARGV[1]
local pending, processing, completed, failed = 0, 0, 0, 0
for _, queue in ipairs(redis.call('SMEMBERS', prefix .. ':queues')) do
	pending = pending + redis.call('ZCARD', prefix .. ':' .. queue .. ':pending')
		+ redis.call('ZCARD', prefix .. ':' .. queue .. ':delayed')
	processing = processing + redis.call('ZCARD', prefix .. ':' .. queue .. ':processing')
	completed = completed + redis.call('LLEN', prefix .. ':' .. queue .. ':completed')
	failed = failed + redis.call('LLEN', prefix .. ':' .. queue .. ':failed')
end
return {pending, processing, completed, failed}
`)
)

// RedisStorage implements the queue storage interfaces on top of Redis.
// All state transitions run inside Lua scripts, so concurrent workers on
// separate processes never claim the same job twice.
type RedisStorage struct {
	client    redis.UniversalClient
	prefix    string
	retention int
}

// RedisStorageOption configures RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix overrides the default "queue" key prefix.
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(s *RedisStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention caps how many completed and failed jobs are kept per queue.
func WithRetention(n int) RedisStorageOption {
	return func(s *RedisStorage) {
		if n > 0 {
			s.retention = n
		}
	}
}

// NewRedisStorage creates a Redis-backed queue storage.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisStorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrStorageNil
	}

	s := &RedisStorage{
		client:    client,
		prefix:    "queue",
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateJob implements EnqueuerStorage.
func (s *RedisStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrPayloadNil
	}

	seq, err := s.client.Incr(ctx, s.prefix+":seq").Result()
	if err != nil {
		return fmt.Errorf("failed to allocate job sequence: %w", err)
	}
	rank := int64(job.Priority)<<rankPriorityShift | seq

	fields := map[string]any{
		"id":           job.ID.String(),
		"queue":        job.Queue,
		"name":         job.Name,
		"payload":      string(job.Payload),
		"status":       string(StatusPending),
		"priority":     int(job.Priority),
		"rank":         rank,
		"attempts":     int(job.Attempts),
		"max_attempts": int(job.MaxAttempts),
		"visible_at":   job.VisibleAt.UnixMilli(),
		"created_at":   job.CreatedAt.UnixMilli(),
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.prefix+":queues", job.Queue)
		pipe.HSet(ctx, s.jobKey(job.ID), fields)
		if job.VisibleAt.After(time.Now()) {
			pipe.ZAdd(ctx, fmt.Sprintf("%s:%s:delayed", s.prefix, job.Queue), redis.Z{
				Score:  float64(job.VisibleAt.UnixMilli()),
				Member: job.ID.String(),
			})
		} else {
			pipe.ZAdd(ctx, fmt.Sprintf("%s:%s:pending", s.prefix, job.Queue), redis.Z{
				Score:  float64(rank),
				Member: job.ID.String(),
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimJob implements WorkerStorage. Queues are tried in the given order,
// so callers list the most urgent queue first.
func (s *RedisStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Job, error) {
	now := time.Now()
	lockUntil := now.Add(lockFor).UnixMilli()

	for _, queue := range queues {
		res, err := claimScript.Run(ctx, s.client, nil,
			s.prefix, queue, now.UnixMilli(), lockUntil, workerID.String()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim job from queue %q: %w", queue, err)
		}

		fields, ok := res.([]any)
		if !ok || len(fields) == 0 {
			continue
		}
		job, err := jobFromHash(fields)
		if err != nil {
			return nil, err
		}
		return job, nil
	}

	return nil, ErrNoJobToClaim
}

// CompleteJob implements WorkerStorage.
func (s *RedisStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	res, err := completeScript.Run(ctx, s.client, nil,
		s.prefix, jobID.String(), time.Now().UnixMilli(), s.retention).Text()
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	switch res {
	case "not_found":
		return ErrJobNotFound
	case "not_processing":
		return ErrJobNotProcessing
	}
	return nil
}

// FailJob implements WorkerStorage.
func (s *RedisStorage) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string, retryAt time.Time) error {
	return s.fail(ctx, jobID, errorMsg, retryAt, false)
}

// DiscardJob implements WorkerStorage.
func (s *RedisStorage) DiscardJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	return s.fail(ctx, jobID, reason, time.Now(), true)
}

func (s *RedisStorage) fail(ctx context.Context, jobID uuid.UUID, errorMsg string, retryAt time.Time, discard bool) error {
	flag := "0"
	if discard {
		flag = "1"
	}
	res, err := failScript.Run(ctx, s.client, nil,
		s.prefix, jobID.String(), errorMsg, retryAt.UnixMilli(), time.Now().UnixMilli(), s.retention, flag).Text()
	if err != nil {
		return fmt.Errorf("failed to fail job %s: %w", jobID, err)
	}
	switch res {
	case "not_found":
		return ErrJobNotFound
	case "not_processing":
		return ErrJobNotProcessing
	}
	return nil
}

// Stats returns aggregate queue depths across all known queues.
func (s *RedisStorage) Stats(ctx context.Context) (Stats, error) {
	res, err := statsScript.Run(ctx, s.client, nil, s.prefix).Int64Slice()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	if len(res) != 4 {
		return Stats{}, fmt.Errorf("unexpected stats reply of length %d", len(res))
	}
	return Stats{
		Pending:    int(res[0]),
		Processing: int(res[1]),
		Completed:  int(res[2]),
		Failed:     int(res[3]),
	}, nil
}

func (s *RedisStorage) jobKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:job:%s", s.prefix, id)
}

// jobFromHash decodes the flat field-value reply of HGETALL into a Job.
func jobFromHash(reply []any) (*Job, error) {
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, _ := reply[i].(string)
		v, _ := reply[i+1].(string)
		fields[k] = v
	}

	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", fields["id"], err)
	}

	priority, _ := strconv.Atoi(fields["priority"])
	attempts, _ := strconv.Atoi(fields["attempts"])
	maxAttempts, _ := strconv.Atoi(fields["max_attempts"])

	job := &Job{
		ID:          id,
		Queue:       fields["queue"],
		Name:        fields["name"],
		Status:      Status(fields["status"]),
		Priority:    Priority(priority),
		Attempts:    int8(attempts),
		MaxAttempts: int8(maxAttempts),
		VisibleAt:   timeFromMilli(fields["visible_at"]),
		CreatedAt:   timeFromMilli(fields["created_at"]),
	}
	if fields["payload"] != "" {
		job.Payload = json.RawMessage(fields["payload"])
	}
	if fields["error"] != "" {
		errMsg := fields["error"]
		job.Error = &errMsg
	}
	if fields["locked_by"] != "" {
		if lockedBy, err := uuid.Parse(fields["locked_by"]); err == nil {
			job.LockedBy = &lockedBy
		}
	}
	if fields["locked_until"] != "" {
		lockedUntil := timeFromMilli(fields["locked_until"])
		job.LockedUntil = &lockedUntil
	}
	return job, nil
}

func timeFromMilli(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
