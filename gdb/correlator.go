package gdb

import (
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/sirupsen/logrus"
)

type interpreter string

const (
	miInterpreter  interpreter = "mi"
	cliInterpreter interpreter = "cli"
)

// pendingRequest 一个已经写入gdb、还没有收到应答的请求
// mi请求在result记录到达时完成；cli请求要等result记录和console回显都到齐，
// 两者先后顺序不限
type pendingRequest struct {
	command string
	interp  interpreter

	done      chan struct{}
	result    map[string]interface{}
	echo      interface{}
	gotResult bool
	gotEcho   bool
	err       error
}

func newPendingRequest(command string, interp interpreter) *pendingRequest {
	return &pendingRequest{
		command: command,
		interp:  interp,
		done:    make(chan struct{}),
	}
}

// correlator 把result记录流和请求队列按严格FIFO配对
//
// result流是消费方：每个result记录弹出队首请求。
// cli回显流只观察队列不消费，避免对同一个上游fork出两个互相zip的
// 消费者造成缓冲死锁。
type correlator struct {
	mu    sync.Mutex
	queue *linkedlistqueue.Queue
	// awaitingEcho 已经拿到result、还在等console回显的cli请求
	awaitingEcho []*pendingRequest
	closed       error
}

func newCorrelator() *correlator {
	return &correlator{queue: linkedlistqueue.New()}
}

func (c *correlator) enqueue(req *pendingRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed != nil {
		return c.closed
	}
	c.queue.Enqueue(req)
	return nil
}

// onResult 第i个result记录和第i个入队的请求配对
func (c *correlator) onResult(rec *Record) {
	c.mu.Lock()
	v, ok := c.queue.Dequeue()
	if !ok {
		c.mu.Unlock()
		logrus.Warnf("result record without pending request dropped, class = %s", rec.Class)
		return
	}
	req := v.(*pendingRequest)
	req.gotResult = true

	if rec.IsError() {
		req.err = &GdbError{
			Command: req.command,
			Msg:     getStringFromMap(rec.Data, "msg"),
			Code:    getIntFromMap(rec.Data, "code"),
		}
		c.mu.Unlock()
		close(req.done)
		return
	}

	req.result, _ = rec.Data.(map[string]interface{})
	if req.interp == cliInterpreter && !req.gotEcho {
		// 回显还没到，挂起等onEcho
		c.awaitingEcho = append(c.awaitingEcho, req)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	close(req.done)
}

// onEcho cli回显正文和最老的一个还没有回显的cli请求配对
func (c *correlator) onEcho(body interface{}) {
	c.mu.Lock()
	if len(c.awaitingEcho) > 0 {
		req := c.awaitingEcho[0]
		c.awaitingEcho = c.awaitingEcho[1:]
		req.echo = body
		req.gotEcho = true
		c.mu.Unlock()
		close(req.done)
		return
	}
	for _, v := range c.queue.Values() {
		req := v.(*pendingRequest)
		if req.interp == cliInterpreter && !req.gotEcho {
			req.echo = body
			req.gotEcho = true
			c.mu.Unlock()
			return
		}
	}
	c.mu.Unlock()
	logrus.Warnf("cli reply without cli request dropped")
}

// fail 整个管道失败，拒绝所有pending请求，之后的入队直接报错
func (c *correlator) fail(err error) {
	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return
	}
	c.closed = err
	reqs := make([]*pendingRequest, 0, c.queue.Size()+len(c.awaitingEcho))
	for {
		v, ok := c.queue.Dequeue()
		if !ok {
			break
		}
		reqs = append(reqs, v.(*pendingRequest))
	}
	reqs = append(reqs, c.awaitingEcho...)
	c.awaitingEcho = nil
	c.mu.Unlock()

	for _, req := range reqs {
		req.err = err
		close(req.done)
	}
}

func (c *correlator) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
