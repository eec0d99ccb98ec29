package gdb

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// cli命令的帧回显：<gdbjs:cmd:name payload name:cmd:gdbjs>
	cmdFrameRe = regexp.MustCompile(`(?s)<gdbjs:cmd:([\w-]+) (.*?) [\w-]+:cmd:gdbjs>`)
	// 用户脚本产生的事件帧：<gdbjs:event:name payload name:event:gdbjs>
	eventFrameRe = regexp.MustCompile(`(?s)<gdbjs:event:([\w-]+) (.*?) [\w-]+:event:gdbjs>`)
	// 任意内部帧，用于对外暴露console输出前的剥离
	anyFrameRe = regexp.MustCompile(`(?s)<gdbjs:.*?:gdbjs>`)
)

// run 读取循环：gdb标准输出按行切分、解析、分发
// 所有解析、分发、配对都发生在这个协程上，事件按记录到达顺序交付
func (g *Gdb) run() {
	scanner := bufio.NewScanner(g.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	// bufio.ScanLines同时接受\r\n和\n，流关闭时把没有换行符的
	// 尾部数据当成最后一行吐出来
	for scanner.Scan() {
		g.dispatch(ParseRecord(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		logrus.Errorf("read gdb output fail, err = %v", err)
	}
	g.shutdown()
}

// dispatch 把一条解析后的记录路由给事件总线和correlator
func (g *Gdb) dispatch(rec *Record) {
	switch rec.Type {
	case ResultRecord:
		g.correlator.onResult(rec)
	case ExecRecord:
		g.emit(EventExec, &AsyncEvent{State: rec.Class, Data: rec.Data})
		g.dispatchExec(rec)
	case StatusRecord:
		g.emit(EventStatus, &AsyncEvent{State: rec.Class, Data: rec.Data})
	case NotifyRecord:
		g.emit(EventNotify, &AsyncEvent{State: rec.Class, Data: rec.Data})
		g.dispatchNotify(rec)
	case ConsoleRecord:
		g.dispatchConsole(rec.Data.(string))
	case TargetRecord:
		g.emit(EventTarget, rec.Data.(string))
	case LogRecord:
		g.emit(EventLog, rec.Data.(string))
	case PromptRecord, RawRecord:
		if g.rawOutput {
			if text, ok := rec.Data.(string); ok {
				g.emit(EventTarget, text)
			}
		}
	}
}

// dispatchExec 从exec记录合成stopped/running高级事件
func (g *Gdb) dispatchExec(rec *Record) {
	data := rec.Data
	switch rec.Class {
	case "stopped":
		event := &StoppedEvent{Reason: getStringFromMap(data, "reason")}
		if id := getStringFromMap(data, "thread-id"); id != "" && id != "all" {
			event.Thread = &Thread{
				ID:     getIntFromMap(data, "thread-id"),
				Status: "stopped",
			}
			if frame := getInterfaceFromMap(data, "frame"); frame != nil {
				event.Thread.Frame = frameFromTuple(frame)
			}
		}
		if event.Reason == "breakpoint-hit" {
			event.Breakpoint = &Breakpoint{ID: getIntFromMap(data, "bkptno")}
		}
		g.emit(EventStopped, event)
	case "running":
		event := &RunningEvent{}
		if id := getStringFromMap(data, "thread-id"); id != "" && id != "all" {
			event.Thread = &Thread{
				ID:     getIntFromMap(data, "thread-id"),
				Status: "running",
			}
		}
		g.emit(EventRunning, event)
	}
}

// dispatchNotify 从notify记录合成线程/线程组事件
func (g *Gdb) dispatchNotify(rec *Record) {
	data := rec.Data
	switch rec.Class {
	case "thread-created", "thread-exited":
		thread := &Thread{ID: getIntFromMap(data, "id")}
		if groupId := getStringFromMap(data, "group-id"); groupId != "" {
			thread.Group = &ThreadGroup{ID: groupID(groupId)}
		}
		g.emit(rec.Class, thread)
	case "thread-group-started", "thread-group-exited":
		group := &ThreadGroup{ID: groupID(getStringFromMap(data, "id"))}
		if checkKeyFromMap(data, "pid") {
			group.PID = getIntFromMap(data, "pid")
		}
		g.emit(rec.Class, group)
	}
}

// dispatchConsole console记录走三条路：
// 1. correlator：magic prefix正文或者cmd帧，作为cli请求的回显
// 2. 事件抽取：cmd帧剥掉之后扫描event帧
// 3. 用户可见的console流：剥掉所有内部帧后发布
func (g *Gdb) dispatchConsole(text string) {
	if strings.HasPrefix(text, g.token) {
		g.correlator.onEcho(strings.TrimPrefix(text, g.token))
	} else if m := cmdFrameRe.FindStringSubmatch(text); m != nil {
		var payload interface{}
		if err := json.Unmarshal([]byte(m[2]), &payload); err != nil {
			logrus.Warnf("malformed cli reply frame dropped, cmd = %s, err = %v", m[1], err)
		} else {
			g.correlator.onEcho(payload)
		}
	}

	// 帧在cli回显里出现时不算事件，先剥cmd帧再抽event帧
	stripped := cmdFrameRe.ReplaceAllString(text, "")
	for _, m := range eventFrameRe.FindAllStringSubmatch(stripped, -1) {
		var payload interface{}
		if err := json.Unmarshal([]byte(m[2]), &payload); err != nil {
			logrus.Warnf("malformed event frame dropped, event = %s, err = %v", m[1], err)
			continue
		}
		g.emit(m[1], payload)
	}

	if visible := anyFrameRe.ReplaceAllString(text, ""); visible != "" {
		g.emit(EventConsole, visible)
	}
}
