package schema

import (
	"io"
	"sync"
)

// StreamReaderInterface 流式读取接口，内存管道与 Redis 管道共用
type StreamReaderInterface[T any] interface {
	Recv() (T, error)
	Close() error
}

// StreamWriterInterface 流式写入接口
type StreamWriterInterface[T any] interface {
	// Send 返回 true 表示流已关闭，调用方应停止写入
	Send(value T, err error) bool
	Close() error
}

var _ StreamReaderInterface[any] = (*StreamReader[any])(nil)
var _ StreamWriterInterface[any] = (*StreamWriter[any])(nil)

// StreamReader 流式数据读取器
type StreamReader[T any] struct {
	ch        chan streamItem[T]
	done      chan struct{}
	closeOnce sync.Once
}

// StreamWriter 流式数据写入器
type StreamWriter[T any] struct {
	ch     chan streamItem[T]
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

type streamItem[T any] struct {
	value T
	err   error
}

// Pipe 创建一个流式管道，返回 Reader 和 Writer
// 缓冲区满时 Send 会阻塞，直到读取方取走数据或关闭读取器
func Pipe[T any](bufferSize int) (*StreamReader[T], *StreamWriter[T]) {
	ch := make(chan streamItem[T], bufferSize)
	done := make(chan struct{})
	return &StreamReader[T]{ch: ch, done: done}, &StreamWriter[T]{ch: ch, done: done}
}

// Recv 从流中读取下一个元素
// 返回值和错误。当流结束时返回 io.EOF
func (r *StreamReader[T]) Recv() (T, error) {
	var zero T
	select {
	case <-r.done:
		return zero, io.EOF
	case item, ok := <-r.ch:
		if !ok {
			return zero, io.EOF
		}
		return item.value, item.err
	}
}

// Close 关闭读取器，阻塞中的写入方会被唤醒
func (r *StreamReader[T]) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	return nil
}

// Send 向流中发送一个元素
// 返回 true 表示流已关闭
func (w *StreamWriter[T]) Send(value T, err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return true
	}

	select {
	case w.ch <- streamItem[T]{value: value, err: err}:
		return false
	case <-w.done:
		// 读取方已经放弃
		return true
	}
}

// Close 关闭写入器
func (w *StreamWriter[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	return nil
}
