// Package executor 提供跨 goroutine 的任务队列。
// 约定为多生产者、单消费者:任意 goroutine 可以 Schedule,
// 只有事件循环 goroutine 调用 Drain,从而把全部状态修改
// 串行化到事件循环上,会话与房间数据无需加锁。
package executor

import "sync"

// Task 无参数回调
type Task func()

// Executor 先进先出任务队列
type Executor struct {
	mu    sync.Mutex
	tasks []Task
	ready chan struct{}
}

// New 创建任务队列
func New() *Executor {
	return &Executor{
		ready: make(chan struct{}, 1),
	}
}

// Schedule 入队一个任务并唤醒消费者,可在任意 goroutine 上调用
func (e *Executor) Schedule(t Task) {
	e.mu.Lock()
	e.tasks = append(e.tasks, t)
	e.mu.Unlock()

	select {
	case e.ready <- struct{}{}:
	default:
	}
}

// Ready 返回唤醒信号,事件循环在 select 中监听
func (e *Executor) Ready() <-chan struct{} {
	return e.ready
}

// Drain 按入队顺序执行全部排队任务,返回执行数量。
// 只能由消费者 goroutine 调用;任务 panic 直接向上传播,
// 这里是 fail-fast 点而不是吞掉错误的地方。
func (e *Executor) Drain() int {
	n := 0
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.mu.Unlock()
			return n
		}
		t := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()

		t()
		n++
	}
}

// Pending 返回当前排队任务数
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}
