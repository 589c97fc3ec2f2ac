package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	// Consumer is implemented by the work process owning the queue
	Consumer[T any] interface {
		Consume(inp T)
	}

	// Queue is a consumer wrapper around VarBuffered: one goroutine pulls
	// elements and feeds them, in order and to completion, into the consumer
	Queue[T any] struct {
		name              string
		que               *VarBuffered[T]
		onConsume         []func(T)
		onClosed          []func()
		emptyAfterCloseWG sync.WaitGroup
		log               *zap.SugaredLogger
		stopOnce          sync.Once
	}
)

func NewQueue[T any](name string, log *zap.SugaredLogger) *Queue[T] {
	return NewQueueWithBufferSize[T](name, defaultBufferSize, log)
}

func NewQueueWithBufferSize[T any](name string, bufSize int, log *zap.SugaredLogger) *Queue[T] {
	ret := &Queue[T]{
		name:      name,
		que:       New[T](bufSize),
		log:       log.Named("[" + name + "]"),
		onConsume: make([]func(T), 0),
		onClosed:  make([]func(), 0),
	}
	return ret
}

func (c *Queue[T]) Name() string {
	return c.name
}

func (c *Queue[T]) Log() *zap.SugaredLogger {
	return c.log
}

func (c *Queue[T]) LogLevel() zapcore.Level {
	return c.log.Level()
}

func (c *Queue[T]) AddOnConsume(funs ...func(T)) *Queue[T] {
	c.onConsume = append(c.onConsume, funs...)
	return c
}

// AddOnClosed specifies functions invoked after the queue is closed and emptied
func (c *Queue[T]) AddOnClosed(funs ...func()) *Queue[T] {
	c.onClosed = append(c.onClosed, funs...)
	return c
}

func (c *Queue[T]) Push(inp T, prio ...bool) {
	c.que.Push(inp, prio...)
}

func (c *Queue[T]) Len() int {
	return c.que.Len()
}

func (c *Queue[T]) Info() (int, int) {
	return c.que.Info()
}

// Start spins up the consume loop and ties the lifetime of the queue to ctx
func (c *Queue[T]) Start(consumer Consumer[T], ctx context.Context) {
	c.AddOnConsume(consumer.Consume)
	c.emptyAfterCloseWG.Add(1)

	go func() {
		c.log.Debugf("STARTING [%s]..", c.log.Level())
		c.que.Consume(c.onConsume...)
		c.emptyAfterCloseWG.Done()
	}()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
}

// Stop closes the queue, waits until it is drained and runs onClosed hooks
func (c *Queue[T]) Stop() {
	c.stopOnce.Do(func() {
		c.log.Debugf("STOPPING..")
		c.que.Close()
		c.emptyAfterCloseWG.Wait()
		for _, fun := range c.onClosed {
			fun()
		}
		_ = c.log.Sync()
	})
}
