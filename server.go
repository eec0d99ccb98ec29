package main

import (
	"bufio"
	"io"
	"log"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/fansqz/gdb-mi/gdb"
	"github.com/fansqz/gdb-mi/utils"
)

// handleConnection handles a connection from a single client.
// It reads and decodes the incoming data and dispatches it
// to per-request processing, and launches the sender goroutine
// to send resulting messages over the connection back to the client.
func handleConnection(conn net.Conn, g *gdb.Gdb) {
	// 创建调试session
	session := &DebugSession{
		id:        uuid.NewString(),
		conn:      conn,
		gdb:       g,
		status:    utils.NewStatusManager(),
		rw:        bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		sendQueue: make(chan dap.Message),
		done:      make(chan struct{}),
	}
	go session.sendFromQueue()
	session.attachEvents()
	session.relayTarget()

	for {
		err := session.handleRequest()
		if err != nil {
			if err == io.EOF {
				log.Printf("No more data to read: %v\n", err)
				break
			}
			log.Printf("Server error: %v\n", err)
		}
	}

	log.Printf("Closing connection from %s\n", conn.RemoteAddr())
	session.detachEvents()
	close(session.done)
	session.sendWg.Wait()
	close(session.sendQueue)
	conn.Close()
}

// DebugSession 一个客户端连接对应的调试会话
type DebugSession struct {
	id   string
	conn net.Conn
	// rw is used to read requests and write events/responses
	rw *bufio.ReadWriter

	gdb    *gdb.Gdb
	status *utils.StatusManager

	// 断点记录，DAP的setBreakpoints按源文件整体替换
	mutex       sync.Mutex
	breakpoints map[string][]*gdb.Breakpoint

	// sendQueue is used to capture messages from multiple request
	// processing goroutines while writing them to the client connection
	// from a single goroutine via sendFromQueue.
	sendQueue chan dap.Message
	sendWg    sync.WaitGroup
	// done 会话关闭时关闭，让转发目标程序输出的协程退出
	done chan struct{}
}

func (d *DebugSession) handleRequest() error {
	request, err := dap.ReadProtocolMessage(d.rw.Reader)
	if err != nil {
		return err
	}
	d.dispatchRequest(request)
	return nil
}

func (d *DebugSession) dispatchRequest(request dap.Message) {
	switch request := request.(type) {
	case *dap.InitializeRequest:
		d.onInitializeRequest(request)
	case *dap.LaunchRequest:
		d.onLaunchRequest(request)
	case *dap.SetBreakpointsRequest:
		d.onSetBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		d.onConfigurationDoneRequest(request)
	case *dap.ContinueRequest:
		d.onContinueRequest(request)
	case *dap.NextRequest:
		d.onNextRequest(request)
	case *dap.StepInRequest:
		d.onStepInRequest(request)
	case *dap.StepOutRequest:
		d.onStepOutRequest(request)
	case *dap.PauseRequest:
		d.onPauseRequest(request)
	case *dap.ThreadsRequest:
		d.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		d.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		d.onScopesRequest(request)
	case *dap.VariablesRequest:
		d.onVariablesRequest(request)
	case *dap.EvaluateRequest:
		d.onEvaluateRequest(request)
	case *dap.DisconnectRequest:
		d.onDisconnectRequest(request)
	case *dap.TerminateRequest:
		d.onTerminateRequest(request)
	default:
		if baseReq, ok := request.(*dap.Request); ok {
			d.send(newErrorResponse(baseReq.Seq, baseReq.Command, baseReq.Command+" is not yet supported"))
		} else {
			log.Printf("Unable to process %#v\n", request)
		}
	}
}

// send 把消息塞进发送队列，由sendFromQueue单协程写连接
func (d *DebugSession) send(message dap.Message) {
	d.sendWg.Add(1)
	go func() {
		d.sendQueue <- message
		d.sendWg.Done()
	}()
}

func (d *DebugSession) sendFromQueue() {
	for message := range d.sendQueue {
		dap.WriteProtocolMessage(d.rw.Writer, message)
		d.rw.Flush()
	}
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

func newErrorResponse(requestSeq int, command string, message string) *dap.ErrorResponse {
	er := &dap.ErrorResponse{}
	er.Response = *newResponse(requestSeq, command)
	er.Success = false
	er.Body.Error = &dap.ErrorMessage{}
	er.Body.Error.Format = message
	er.Body.Error.Id = 12345
	return er
}
