package schema

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Malowking/finrag/core/cache"
	"github.com/Malowking/finrag/core/errors"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/redis/go-redis/v9"
)

const (
	streamKeyPrefix = "cot:stream:"
	readBlock       = time.Second

	// 每条消息只有一个字段：data 为数据，eof 为正常结束，error 为异常结束
	fieldData  = "data"
	fieldEOF   = "eof"
	fieldError = "error"
)

var (
	streamTTL       = 10 * time.Minute
	maxStreamLength = int64(1000)
)

// SetRedisStreamConfig 非正值保持默认
func SetRedisStreamConfig(ttl time.Duration, maxLen int64) {
	if ttl > 0 {
		streamTTL = ttl
	}
	if maxLen > 0 {
		maxStreamLength = maxLen
	}
	g.Log().Infof(context.Background(), "Redis stream config: ttl=%v, maxLen=%d", streamTTL, maxStreamLength)
}

// RedisStreamWriter 把元素追加到 Redis Stream，Close 时追加结束标记
// 可以在写入前、写入中或写入后打开读取器，读取器总能从头回放
type RedisStreamWriter[T any] struct {
	mu      sync.Mutex
	rdb     *redis.Client
	key     string
	ctx     context.Context
	closed  bool
	failed  bool
	expired bool
}

// RedisStreamReader 从头回放 Redis Stream，读到结束标记返回 io.EOF
type RedisStreamReader[T any] struct {
	rdb    *redis.Client
	key    string
	lastID string
	ctx    context.Context
	cancel context.CancelFunc
	done   bool
}

var _ StreamReaderInterface[any] = (*RedisStreamReader[any])(nil)
var _ StreamWriterInterface[any] = (*RedisStreamWriter[any])(nil)

// NewRedisStreamWriter Redis 未初始化时返回 nil；同一 streamID 上一次运行的数据会被清掉
func NewRedisStreamWriter[T any](ctx context.Context, streamID string) *RedisStreamWriter[T] {
	rdb := cache.GetRedisClient()
	if rdb == nil {
		return nil
	}
	w := &RedisStreamWriter[T]{
		rdb: rdb,
		key: streamKeyPrefix + streamID,
		ctx: context.WithoutCancel(ctx),
	}
	rdb.Del(w.ctx, w.key)
	return w
}

// OpenRedisStream Redis 未初始化时返回 nil
func OpenRedisStream[T any](ctx context.Context, streamID string) *RedisStreamReader[T] {
	rdb := cache.GetRedisClient()
	if rdb == nil {
		g.Log().Warning(ctx, "Redis client not initialized, progress stream unavailable")
		return nil
	}
	readerCtx, cancel := context.WithCancel(ctx)
	return &RedisStreamReader[T]{
		rdb:    rdb,
		key:    streamKeyPrefix + streamID,
		lastID: "0",
		ctx:    readerCtx,
		cancel: cancel,
	}
}

func (w *RedisStreamWriter[T]) add(field, value string) error {
	err := w.rdb.XAdd(w.ctx, &redis.XAddArgs{
		Stream: w.key,
		MaxLen: maxStreamLength,
		Approx: true,
		Values: map[string]any{field: value},
	}).Err()
	if err == nil && !w.expired {
		w.rdb.Expire(w.ctx, w.key, streamTTL)
		w.expired = true
	}
	return err
}

// Send err 非空时写入错误结束标记，之后的写入被忽略；返回 true 表示调用方应停止写入
func (w *RedisStreamWriter[T]) Send(value T, err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.failed {
		return true
	}

	if err != nil {
		w.failed = true
		if addErr := w.add(fieldError, err.Error()); addErr != nil {
			g.Log().Errorf(w.ctx, "Failed to write error marker to %s: %v", w.key, addErr)
		}
		return true
	}

	data, err := sonic.MarshalString(value)
	if err != nil {
		g.Log().Errorf(w.ctx, "Failed to marshal stream message: %v", err)
		return true
	}
	if err := w.add(fieldData, data); err != nil {
		g.Log().Errorf(w.ctx, "Failed to append to %s: %v", w.key, err)
		return true
	}
	return false
}

// Close 已写入错误标记的流不再追加结束标记
func (w *RedisStreamWriter[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.failed {
		return nil
	}
	return w.add(fieldEOF, "1")
}

// Recv 阻塞到下一条消息、结束标记或读取器被关闭
func (r *RedisStreamReader[T]) Recv() (T, error) {
	var zero T
	for !r.done {
		if r.ctx.Err() != nil {
			r.done = true
			break
		}

		streams, err := r.rdb.XRead(r.ctx, &redis.XReadArgs{
			Streams: []string{r.key, r.lastID},
			Count:   1,
			Block:   readBlock,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if r.ctx.Err() != nil {
				r.done = true
				break
			}
			return zero, errors.Wrap(errors.ErrStreamingFailed, err, "failed to read progress stream")
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}

		msg := streams[0].Messages[0]
		r.lastID = msg.ID
		return r.decode(msg.Values)
	}
	return zero, io.EOF
}

func (r *RedisStreamReader[T]) decode(values map[string]any) (T, error) {
	var zero T
	if data, ok := values[fieldData].(string); ok {
		var out T
		if err := sonic.UnmarshalString(data, &out); err != nil {
			return zero, errors.Wrap(errors.ErrStreamingFailed, err, "failed to decode progress message")
		}
		return out, nil
	}

	r.done = true
	if msg, ok := values[fieldError].(string); ok {
		return zero, errors.New(errors.ErrStreamingFailed, msg)
	}
	if _, ok := values[fieldEOF]; ok {
		return zero, io.EOF
	}
	return zero, errors.New(errors.ErrStreamingFailed, "malformed progress message")
}

// Close 关闭读取器，阻塞中的 Recv 返回 io.EOF
func (r *RedisStreamReader[T]) Close() error {
	r.cancel()
	return nil
}
