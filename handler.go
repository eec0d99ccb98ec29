package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/fansqz/gdb-mi/gdb"
	"github.com/fansqz/gdb-mi/utils"
	"github.com/fansqz/gdb-mi/utils/gosync"
)

// attachEvents 把包装器的事件转成DAP事件推给客户端
func (d *DebugSession) attachEvents() {
	d.gdb.On(gdb.EventStopped, func(event interface{}) {
		stopped := event.(*gdb.StoppedEvent)
		if stopped.Reason == "exited-normally" {
			d.status.Set(utils.Finish)
			d.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
			return
		}
		d.status.Set(utils.Stopped)
		body := dap.StoppedEventBody{
			Reason:            stoppedReason(stopped.Reason),
			AllThreadsStopped: true,
		}
		if stopped.Thread != nil {
			body.ThreadId = stopped.Thread.ID
		}
		d.send(&dap.StoppedEvent{Event: *newEvent("stopped"), Body: body})
	})
	d.gdb.On(gdb.EventRunning, func(event interface{}) {
		d.status.Set(utils.Running)
		running := event.(*gdb.RunningEvent)
		body := dap.ContinuedEventBody{AllThreadsContinued: true}
		if running.Thread != nil {
			body.ThreadId = running.Thread.ID
			body.AllThreadsContinued = false
		}
		d.send(&dap.ContinuedEvent{Event: *newEvent("continued"), Body: body})
	})
	d.gdb.On(gdb.EventThreadCreated, func(event interface{}) {
		thread := event.(*gdb.Thread)
		d.send(&dap.ThreadEvent{
			Event: *newEvent("thread"),
			Body:  dap.ThreadEventBody{Reason: "started", ThreadId: thread.ID},
		})
	})
	d.gdb.On(gdb.EventThreadExited, func(event interface{}) {
		thread := event.(*gdb.Thread)
		d.send(&dap.ThreadEvent{
			Event: *newEvent("thread"),
			Body:  dap.ThreadEventBody{Reason: "exited", ThreadId: thread.ID},
		})
	})
	d.gdb.On(gdb.EventConsole, func(event interface{}) {
		d.sendOutput("console", event.(string))
	})
	d.gdb.On(gdb.EventTarget, func(event interface{}) {
		d.sendOutput("stdout", event.(string))
	})
	d.gdb.On(gdb.EventLog, func(event interface{}) {
		logrus.Debugf("[%s] gdb log: %s", d.id, event.(string))
	})
}

func (d *DebugSession) detachEvents() {
	for _, name := range []string{
		gdb.EventStopped, gdb.EventRunning,
		gdb.EventThreadCreated, gdb.EventThreadExited,
		gdb.EventConsole, gdb.EventTarget, gdb.EventLog,
	} {
		d.gdb.Off(name)
	}
}

// relayTarget 循环读取目标程序的输出转发给客户端
// inferior走Spawn分配的pty时才有输出可读
func (d *DebugSession) relayTarget() {
	if d.gdb.TTY() == "" {
		return
	}
	gosync.Go(context.Background(), func(ctx context.Context) {
		b := make([]byte, 1024)
		for {
			n, err := d.gdb.Read(b)
			if err != nil {
				return
			}
			select {
			case <-d.done:
				return
			default:
			}
			d.sendOutput("stdout", string(b[0:n]))
		}
	})
}

func (d *DebugSession) sendOutput(category, output string) {
	d.send(&dap.OutputEvent{
		Event: *newEvent("output"),
		Body:  dap.OutputEventBody{Category: category, Output: output},
	})
}

// stoppedReason mi的停止原因转成DAP的reason
func stoppedReason(reason string) string {
	switch reason {
	case "breakpoint-hit":
		return "breakpoint"
	case "end-stepping-range", "function-finished":
		return "step"
	case "signal-received":
		return "exception"
	}
	return "pause"
}

func (d *DebugSession) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsFunctionBreakpoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsTerminateRequest = true
	// Notify the client with an 'initialized' event. The client will end
	// the configuration sequence with 'configurationDone' request.
	e := &dap.InitializedEvent{Event: *newEvent("initialized")}
	d.send(e)
	d.send(response)
}

// onLaunchRequest 目标程序在进程启动时就已经加载，这里只确认
func (d *DebugSession) onLaunchRequest(request *dap.LaunchRequest) {
	response := &dap.LaunchResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	path := request.Arguments.Source.Path
	d.mutex.Lock()
	defer d.mutex.Unlock()
	// 删除这个文件原来的所有断点
	for _, bp := range d.breakpoints[path] {
		if err := d.gdb.RemoveBreak(bp); err != nil {
			logrus.Warnf("[%s] remove breakpoint fail, err = %v", d.id, err)
		}
	}
	if d.breakpoints == nil {
		d.breakpoints = make(map[string][]*gdb.Breakpoint)
	}
	d.breakpoints[path] = nil

	response := &dap.SetBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	for _, b := range request.Arguments.Breakpoints {
		bp, err := d.gdb.AddBreak(path, b.Line, nil)
		if err != nil {
			response.Body.Breakpoints = append(response.Body.Breakpoints,
				dap.Breakpoint{Line: b.Line, Verified: false, Message: err.Error()})
			continue
		}
		d.breakpoints[path] = append(d.breakpoints[path], bp)
		response.Body.Breakpoints = append(response.Body.Breakpoints, dap.Breakpoint{
			Id:       bp.ID,
			Line:     bp.Line,
			Verified: true,
			Source:   &dap.Source{Name: filepath.Base(bp.File), Path: bp.File},
		})
	}
	d.send(response)
}

func (d *DebugSession) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	if err := d.gdb.Run(nil); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onContinueRequest(request *dap.ContinueRequest) {
	if !d.status.Is(utils.Stopped) {
		d.send(newErrorResponse(request.Seq, request.Command, "program is not stopped"))
		return
	}
	if err := d.gdb.Proceed(nil); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ContinueResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onNextRequest(request *dap.NextRequest) {
	if !d.status.Is(utils.Stopped) {
		d.send(newErrorResponse(request.Seq, request.Command, "program is not stopped"))
		return
	}
	if err := d.gdb.Next(nil); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.NextResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepInRequest(request *dap.StepInRequest) {
	if !d.status.Is(utils.Stopped) {
		d.send(newErrorResponse(request.Seq, request.Command, "program is not stopped"))
		return
	}
	if err := d.gdb.StepIn(nil); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepInResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepOutRequest(request *dap.StepOutRequest) {
	if !d.status.Is(utils.Stopped) {
		d.send(newErrorResponse(request.Seq, request.Command, "program is not stopped"))
		return
	}
	if err := d.gdb.StepOut(nil); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepOutResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onPauseRequest(request *dap.PauseRequest) {
	if err := d.gdb.Interrupt(nil); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.PauseResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onThreadsRequest(request *dap.ThreadsRequest) {
	threads, err := d.gdb.Threads(nil)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ThreadsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	for _, t := range threads {
		name := fmt.Sprintf("thread %d", t.ID)
		if t.Frame != nil && t.Frame.Func != "" {
			name = fmt.Sprintf("thread %d (%s)", t.ID, t.Frame.Func)
		}
		response.Body.Threads = append(response.Body.Threads, dap.Thread{Id: t.ID, Name: name})
	}
	d.send(response)
}

func (d *DebugSession) onStackTraceRequest(request *dap.StackTraceRequest) {
	if !d.status.Is(utils.Stopped) {
		d.send(newErrorResponse(request.Seq, request.Command, "program is not stopped"))
		return
	}
	var thread *gdb.Thread
	if request.Arguments.ThreadId != 0 {
		thread = &gdb.Thread{ID: request.Arguments.ThreadId}
	}
	frames, err := d.gdb.Callstack(thread)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StackTraceResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	for _, f := range frames {
		response.Body.StackFrames = append(response.Body.StackFrames, dap.StackFrame{
			Id:   f.Level,
			Name: f.Func,
			Line: f.Line,
			Source: &dap.Source{
				Name: filepath.Base(f.File),
				Path: f.File,
			},
		})
	}
	response.Body.TotalFrames = len(response.Body.StackFrames)
	d.send(response)
}

const (
	localScopeReference  = 1
	globalScopeReference = 2
)

func (d *DebugSession) onScopesRequest(request *dap.ScopesRequest) {
	response := &dap.ScopesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.ScopesResponseBody{
		Scopes: []dap.Scope{
			{Name: "Local", VariablesReference: localScopeReference},
			{Name: "Global", VariablesReference: globalScopeReference},
		},
	}
	d.send(response)
}

func (d *DebugSession) onVariablesRequest(request *dap.VariablesRequest) {
	if !d.status.Is(utils.Stopped) {
		d.send(newErrorResponse(request.Seq, request.Command, "program is not stopped"))
		return
	}
	var variables []dap.Variable
	switch request.Arguments.VariablesReference {
	case globalScopeReference:
		globals, err := d.gdb.Globals()
		if err != nil {
			d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
			return
		}
		for _, v := range globals {
			value, err := d.gdb.Evaluate(v.Name, nil)
			if err != nil {
				logrus.Warnf("[%s] evaluate global %s fail, err = %v", d.id, v.Name, err)
				continue
			}
			variables = append(variables, dap.Variable{Name: v.Name, Type: v.Type, Value: value})
		}
	default:
		locals, err := d.gdb.Vars(nil)
		if err != nil {
			d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
			return
		}
		for _, v := range locals {
			variables = append(variables, dap.Variable{Name: v.Name, Type: v.Type, Value: v.Value})
		}
	}
	response := &dap.VariablesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.VariablesResponseBody{Variables: variables}
	d.send(response)
}

func (d *DebugSession) onEvaluateRequest(request *dap.EvaluateRequest) {
	value, err := d.gdb.Evaluate(request.Arguments.Expression, nil)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.EvaluateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.EvaluateResponseBody{Result: value}
	d.send(response)
}

func (d *DebugSession) onDisconnectRequest(request *dap.DisconnectRequest) {
	response := &dap.DisconnectResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onTerminateRequest(request *dap.TerminateRequest) {
	if err := d.gdb.Exit(); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	d.status.Set(utils.Finish)
	response := &dap.TerminateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}
