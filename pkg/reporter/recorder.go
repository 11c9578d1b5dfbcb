package reporter

import (
	"context"
	"sync"
)

// Call 一次记录下来的发送
type Call struct {
	Endpoint string
	Payload  []byte
}

// Recorder 在内存中记录发送内容，不发出网络请求
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Err   error // 非空时每次 Send 返回该错误（仍然记录）
}

// Send 记录一次发送
func (r *Recorder) Send(_ context.Context, endpoint string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Endpoint: endpoint, Payload: append([]byte(nil), payload...)})
	return r.Err
}

// Calls 返回已记录的发送副本
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// observed 在每次发送后回调结果
type observed struct {
	next    Reporter
	observe func(endpoint string, err error)
}

// WithObserver 包装 Reporter，每次发送后调用 observe
func WithObserver(next Reporter, observe func(endpoint string, err error)) Reporter {
	return &observed{next: next, observe: observe}
}

func (o *observed) Send(ctx context.Context, endpoint string, payload []byte) error {
	err := o.next.Send(ctx, endpoint, payload)
	o.observe(endpoint, err)
	return err
}
