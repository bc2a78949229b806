package worker

import (
	"context"
	"fmt"
	"sync"

	"M1Pose/logger"
)

// Job 是提交到调度器的一段阻塞工作
type Job func(ctx context.Context) error

// Task 是一次已提交工作的句柄，Wait 挂起调用方直到工作完成
type Task struct {
	done chan struct{}
	err  error
}

// Wait 阻塞直到任务完成或调用方的 ctx 被取消。
// ctx 取消只解除等待，任务本身仍会运行到结束。
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatcher 有界工作池：CPU密集的流水线任务提交到这里执行，
// 请求协程在 Task 上挂起等待，而不是自己承担计算。
type Dispatcher struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewDispatcher 创建容量为 capacity 的调度器
func NewDispatcher(capacity int) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}
	return &Dispatcher{
		slots: make(chan struct{}, capacity),
	}
}

// Submit 占用一个槽位并在后台协程中运行 job，返回任务句柄。
// 池满时阻塞等待空位；等待期间 ctx 取消则放弃提交。
func (d *Dispatcher) Submit(ctx context.Context, job Job) (*Task, error) {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("dispatcher slot wait: %w", ctx.Err())
	}

	task := &Task{done: make(chan struct{})}
	d.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				task.err = fmt.Errorf("worker panic: %v", r)
				logger.Error("worker panic", logger.Any("panic", r))
			}
			<-d.slots
			d.wg.Done()
			close(task.done)
		}()
		// 任务一旦开始不再受提交方 ctx 约束，运行到完成或失败
		task.err = job(context.Background())
	}()

	return task, nil
}

// Drain 等待所有在途任务结束，用于停机
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

// Capacity 返回池容量
func (d *Dispatcher) Capacity() int {
	return cap(d.slots)
}
