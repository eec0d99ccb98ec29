package gdb

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// 包装器对外发布的事件名
// 除此之外，调试器内的用户python脚本可以通过event帧产生任意自定义事件名
const (
	// 原始mi记录事件，payload为*AsyncEvent
	EventExec   = "exec"
	EventNotify = "notify"
	EventStatus = "status"

	// 输出流事件，payload为string（console已剥离内部帧）
	EventConsole = "console"
	EventTarget  = "target"
	EventLog     = "log"

	// 高级事件，payload分别是*StoppedEvent、*RunningEvent、
	// *Thread、*ThreadGroup和objfile路径字符串
	EventStopped            = "stopped"
	EventRunning            = "running"
	EventThreadCreated      = "thread-created"
	EventThreadExited       = "thread-exited"
	EventThreadGroupStarted = "thread-group-started"
	EventThreadGroupExited  = "thread-group-exited"
	EventNewObjfile         = "new-objfile"
)

// AsyncEvent exec/notify/status记录的原始payload
type AsyncEvent struct {
	State string
	Data  interface{}
}

// StoppedEvent 目标程序停止
// Thread在thread-id存在且不为"all"时设置
// Breakpoint在reason为breakpoint-hit时设置
type StoppedEvent struct {
	Reason     string
	Thread     *Thread
	Breakpoint *Breakpoint
}

// RunningEvent 目标程序恢复执行，thread-id为"all"时Thread为nil
type RunningEvent struct {
	Thread *Thread
}

// Handler 事件回调，在读取gdb输出的协程上按记录到达顺序执行
type Handler func(event interface{})

// emitter 支持同一事件上挂多个观察者，事件派发不消费记录
type emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func (e *emitter) on(name string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]Handler)
	}
	e.handlers[name] = append(e.handlers[name], handler)
}

func (e *emitter) off(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, name)
}

func (e *emitter) emit(name string, event interface{}) {
	e.mu.RLock()
	handlers := e.handlers[name]
	e.mu.RUnlock()
	for _, h := range handlers {
		callHandler(name, h, event)
	}
}

// callHandler 兜住回调的panic，避免打断读取循环
func callHandler(name string, h Handler, event interface{}) {
	defer func() {
		if err := recover(); err != nil {
			logrus.Errorf("event handler panic, event = %s, err = %v", name, err)
		}
	}()
	h(event)
}
