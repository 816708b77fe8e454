package cot

import (
	"context"
	"time"

	"github.com/Malowking/finrag/core/cache"
	"github.com/Malowking/finrag/core/errors"
	"github.com/Malowking/finrag/core/workflow"
	"github.com/Malowking/finrag/pkg/schema"
	"github.com/cloudwego/eino/compose"
	"github.com/gogf/gf/v2/container/gmap"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/google/uuid"
)

// runLockTTL 跨实例运行锁的过期时间，防止进程崩溃后锁无法释放
const runLockTTL = 30 * time.Minute

var (
	wf *workflow.Workflow
	// activeRuns threadID -> *activeRun
	activeRuns = gmap.NewStrAnyMap(true)
)

type activeRun struct {
	owner   string
	cancel  context.CancelFunc
	started time.Time
}

// SetWorkflow 设置全局工作流
func SetWorkflow(w *workflow.Workflow) {
	wf = w
}

// GetWorkflow 获取全局工作流
func GetWorkflow() *workflow.Workflow {
	return wf
}

// Run 同步执行一次运行
func Run(ctx context.Context, threadID, query string) (*workflow.RunState, error) {
	runCtx, threadID, done, err := begin(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer done()

	mirror := schema.NewRedisStreamWriter[*workflow.Snapshot](runCtx, threadID)
	state, runErr := wf.Run(runCtx, workflow.RunRequest{
		ThreadID: threadID,
		Query:    query,
		Observer: mirrorObserver(mirror),
	})
	closeMirror(mirror, threadID, state, runErr)
	return state, runErr
}

// Stream 异步执行并返回快照流，流结束时释放运行
func Stream(ctx context.Context, threadID, query string) (schema.StreamReaderInterface[*workflow.Snapshot], string, error) {
	runCtx, threadID, done, err := begin(ctx, threadID)
	if err != nil {
		return nil, "", err
	}

	mirror := schema.NewRedisStreamWriter[*workflow.Snapshot](runCtx, threadID)
	observer := mirrorObserver(mirror)
	reader := wf.Stream(runCtx, workflow.RunRequest{
		ThreadID: threadID,
		Query:    query,
		Observer: func(s *workflow.Snapshot) {
			observer(s)
			if s.Final {
				if mirror != nil {
					_ = mirror.Close()
				}
				done()
			}
		},
	})
	return reader, threadID, nil
}

// Cancel 取消会话上正在执行的运行，下一个节点开始前生效
func Cancel(ctx context.Context, threadID string) error {
	v := activeRuns.Get(threadID)
	if v == nil {
		return errors.Newf(errors.ErrRunNotFound, "no active run for thread %s", threadID)
	}
	run := v.(*activeRun)
	run.cancel()
	g.Log().Infof(ctx, "Run cancellation requested, thread=%s, running for %v", threadID, time.Since(run.started))
	return nil
}

// Progress 订阅 Redis 中镜像的运行进度，支持其他实例或断线重连的客户端
func Progress(ctx context.Context, threadID string) (schema.StreamReaderInterface[*workflow.Snapshot], error) {
	reader := schema.OpenRedisStream[*workflow.Snapshot](ctx, threadID)
	if reader == nil {
		return nil, errors.New(errors.ErrOperationFailed, "progress streaming requires redis")
	}
	return reader, nil
}

// IsActive 会话上是否有本实例执行中的运行
func IsActive(threadID string) bool {
	return activeRuns.Contains(threadID)
}

// begin 占用会话并派生可取消的运行上下文，done 必须调用一次
func begin(ctx context.Context, threadID string) (context.Context, string, func(), error) {
	if wf == nil {
		return nil, "", nil, errors.New(errors.ErrModelNotConfigured, "reasoning workflow is not initialized")
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{owner: uuid.NewString(), cancel: cancel, started: time.Now()}
	if !activeRuns.SetIfNotExist(threadID, run) {
		cancel()
		return nil, "", nil, errors.Newf(errors.ErrRunAlreadyActive, "thread %s already has an active run", threadID)
	}

	locked, err := cache.AcquireRunLock(ctx, threadID, run.owner, runLockTTL)
	if err != nil {
		g.Log().Warningf(ctx, "Failed to acquire run lock for thread %s, continuing with local lock only: %v", threadID, err)
		locked = true
	}
	if !locked {
		activeRuns.Remove(threadID)
		cancel()
		return nil, "", nil, errors.Newf(errors.ErrRunAlreadyActive, "thread %s is running on another instance", threadID)
	}

	done := func() {
		cancel()
		activeRuns.Remove(threadID)
		if err := cache.ReleaseRunLock(context.WithoutCancel(ctx), threadID, run.owner); err != nil {
			g.Log().Warningf(ctx, "Failed to release run lock for thread %s: %v", threadID, err)
		}
	}
	return runCtx, threadID, done, nil
}

func mirrorObserver(mirror *schema.RedisStreamWriter[*workflow.Snapshot]) workflow.Observer {
	return func(s *workflow.Snapshot) {
		if mirror != nil {
			mirror.Send(s, nil)
		}
	}
}

// closeMirror 同步运行结束后补发最终快照
func closeMirror(mirror *schema.RedisStreamWriter[*workflow.Snapshot], threadID string, state *workflow.RunState, err error) {
	if mirror == nil {
		return
	}
	final := &workflow.Snapshot{ThreadID: threadID, Node: compose.END, State: state.Clone(), Final: true}
	if err != nil {
		final.Error = err.Error()
	}
	mirror.Send(final, nil)
	_ = mirror.Close()
}
