package gdb

import (
	"fmt"

	"github.com/emirpasic/gods/sets/linkedhashset"
)

// 公共操作。每个操作持有串行化锁：两个并发调用中，后一个的
// 第一个字节一定在前一个完成之后才写向gdb。

// Init 注入调试器侧的辅助脚本
// 启用concat回显、gdbjs自定义命令和事件帧，必须在使用
// cli相关操作之前调用。重新Init会使memo过的全局变量列表失效
func (g *Gdb) Init() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	scripts, err := helperScripts()
	if err != nil {
		return err
	}
	for _, src := range scripts {
		if err := g.execPython(src); err != nil {
			return err
		}
	}
	g.globalVars = nil
	return nil
}

// Set 设置gdb内部变量
func (g *Gdb) Set(param, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set(param, value)
}

func (g *Gdb) set(param, value string) error {
	_, err := g.sendMI("-gdb-set " + param + " " + value)
	return err
}

// AttachOnFork fork出来的子进程也纳入调试
func (g *Gdb) AttachOnFork() error {
	return g.Set("detach-on-fork", "off")
}

// EnableAsync 启用mi异步模式
// gdb 7.8之前选项叫target-async，失败时回退。启用后Interrupt
// 走-exec-interrupt而不是信号
func (g *Gdb) EnableAsync() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.set("mi-async", "on"); err != nil {
		if _, ok := err.(*GdbError); !ok {
			return err
		}
		if err = g.set("target-async", "on"); err != nil {
			return err
		}
	}
	g.async = true
	return nil
}

// Attach 附加到一个正在运行的进程
func (g *Gdb) Attach(pid int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.sendMI(fmt.Sprintf("-target-attach %d", pid))
	return err
}

// Detach 脱离一个进程
func (g *Gdb) Detach(pid int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.sendMI(fmt.Sprintf("-target-detach %d", pid))
	return err
}

// DetachGroup 脱离一个线程组
func (g *Gdb) DetachGroup(group *ThreadGroup) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.sendMI(fmt.Sprintf("-target-detach i%d", group.ID))
	return err
}

// Interrupt 中断目标程序
// async模式下用-exec-interrupt（scope为nil时--all），
// 否则需要Option.Interrupt提供的信号能力
func (g *Gdb) Interrupt(scope Scope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.correlator.closedErr(); err != nil {
		return err
	}
	if !g.async {
		if g.interrupt == nil {
			return ErrInterruptUnsupported
		}
		return g.interrupt()
	}
	command := "-exec-interrupt --all"
	switch s := scope.(type) {
	case *Thread:
		if s != nil {
			command = fmt.Sprintf("-exec-interrupt --thread %d", s.ID)
		}
	case *ThreadGroup:
		if s != nil {
			command = fmt.Sprintf("-exec-interrupt --thread-group i%d", s.ID)
		}
	}
	_, err := g.sendMI(command)
	return err
}

// Threads 线程列表
func (g *Gdb) Threads(scope Scope) ([]*Thread, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	result, err := g.execMI("-thread-info", scope)
	if err != nil {
		return nil, err
	}
	list := getListFromMap(result, "threads")
	answer := make([]*Thread, 0, len(list))
	for _, t := range list {
		answer = append(answer, threadFromTuple(t))
	}
	return answer, nil
}

// CurrentThread 当前线程，没有选中线程时返回nil
func (g *Gdb) CurrentThread() (*Thread, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentThread()
}

// SelectThread 切换当前线程
func (g *Gdb) SelectThread(thread *Thread) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.sendMI(fmt.Sprintf("-thread-select %d", thread.ID))
	return err
}

// ThreadGroups 线程组（inferior）列表
func (g *Gdb) ThreadGroups() ([]*ThreadGroup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.threadGroups()
}

func (g *Gdb) threadGroups() ([]*ThreadGroup, error) {
	result, err := g.sendMI("-list-thread-groups")
	if err != nil {
		return nil, err
	}
	list := getListFromMap(result, "groups")
	answer := make([]*ThreadGroup, 0, len(list))
	for _, t := range list {
		answer = append(answer, threadGroupFromTuple(t))
	}
	return answer, nil
}

// CurrentThreadGroup 当前线程组
func (g *Gdb) CurrentThreadGroup() (*ThreadGroup, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reply, err := g.execCMD("group", nil)
	if err != nil {
		return nil, err
	}
	return threadGroupFromJSON(reply), nil
}

// SelectThreadGroup 切换当前线程组
// 这是用户主动的切换，当前线程跟着变，不做preserve
func (g *Gdb) SelectThreadGroup(group *ThreadGroup) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.sendCLI(fmt.Sprintf("inferior %d", group.ID))
	return err
}

// AddBreak 在file:pos添加断点，pos是行号、函数名或者label
func (g *Gdb) AddBreak(file string, pos interface{}, thread *Thread) (*Breakpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addBreak(fmt.Sprintf("%s%s:%v", breakThreadOption(thread), file, pos), thread)
}

// AddFunctionBreak 在函数入口添加断点
// 模板和重载函数会命中多个位置，全部函数名收集在Funcs里
func (g *Gdb) AddFunctionBreak(function string, thread *Thread) (*Breakpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addBreak(fmt.Sprintf("%s--function %s", breakThreadOption(thread), function), thread)
}

// AddLabelBreak 在label处添加断点
func (g *Gdb) AddLabelBreak(label string, thread *Thread) (*Breakpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addBreak(fmt.Sprintf("%s--label %s", breakThreadOption(thread), label), thread)
}

// AddOptionsBreak 用原始的break-insert选项添加断点
func (g *Gdb) AddOptionsBreak(options string, thread *Thread) (*Breakpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addBreak(breakThreadOption(thread)+options, thread)
}

func breakThreadOption(thread *Thread) string {
	if thread == nil {
		return ""
	}
	return fmt.Sprintf("-p %d ", thread.ID)
}

func (g *Gdb) addBreak(spec string, thread *Thread) (*Breakpoint, error) {
	result, err := g.sendMI("-break-insert " + spec)
	if err != nil {
		return nil, err
	}
	bp := breakpointFromResult(result)
	if bp == nil {
		return nil, fmt.Errorf("break-insert returned no breakpoint: %v", result)
	}
	bp.Thread = thread
	return bp, nil
}

// RemoveBreak 删除断点
func (g *Gdb) RemoveBreak(bp *Breakpoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.sendMI(fmt.Sprintf("-break-delete %d", bp.ID))
	return err
}

// StepIn 单步，会进入函数内部
func (g *Gdb) StepIn(scope Scope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.execMI("-exec-step", scope)
	return err
}

// StepOut 执行到当前函数返回
func (g *Gdb) StepOut(scope Scope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.execMI("-exec-finish", scope)
	return err
}

// Next 单步，不进入函数内部
func (g *Gdb) Next(scope Scope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.execMI("-exec-next", scope)
	return err
}

// Run 从头开始运行目标程序
func (g *Gdb) Run(group *ThreadGroup) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.execMI("-exec-run", groupScope(group))
	return err
}

// Proceed 继续执行到下一个断点
func (g *Gdb) Proceed(scope Scope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.execMI("-exec-continue", scope)
	return err
}

// Context 当前上下文可见的所有符号
func (g *Gdb) Context(thread *Thread) ([]*Variable, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reply, err := g.execCMD("context", threadScope(thread))
	if err != nil {
		return nil, err
	}
	return variablesFromJSON(reply), nil
}

// Vars 当前栈帧的局部变量和参数
func (g *Gdb) Vars(thread *Thread) ([]*Variable, error) {
	variables, err := g.Context(thread)
	if err != nil {
		return nil, err
	}
	answer := make([]*Variable, 0, len(variables))
	for _, v := range variables {
		if v.Scope == "local" || v.Scope == "argument" {
			answer = append(answer, v)
		}
	}
	return answer, nil
}

// Callstack 调用栈
func (g *Gdb) Callstack(thread *Thread) ([]*Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	result, err := g.execMI("-stack-list-frames", threadScope(thread))
	if err != nil {
		return nil, err
	}
	// stack是result列表，同名的frame项collapse成列表
	stack := getInterfaceFromMap(result, "stack")
	frames := getMultiFromMap(stack, "frame")
	answer := make([]*Frame, 0, len(frames))
	for _, f := range frames {
		answer = append(answer, frameFromTuple(f))
	}
	return answer, nil
}

// SourceFilesOption SourceFiles的查询条件
type SourceFilesOption struct {
	// Group 只查这个线程组，为nil时查所有线程组并去重
	Group *ThreadGroup
	// Pattern 源文件路径的正则过滤，空串匹配全部
	Pattern string
}

// SourceFiles 目标程序的源文件列表
// 全局查询逐个线程组查并按首次出现顺序去重
func (g *Gdb) SourceFiles(opt *SourceFilesOption) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if opt == nil {
		opt = &SourceFilesOption{}
	}
	if opt.Group != nil {
		return g.sourceFiles(opt.Pattern, opt.Group)
	}
	groups, err := g.threadGroups()
	if err != nil {
		return nil, err
	}
	set := linkedhashset.New()
	for _, group := range groups {
		files, err := g.sourceFiles(opt.Pattern, group)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			set.Add(f)
		}
	}
	answer := make([]string, 0, set.Size())
	for _, v := range set.Values() {
		answer = append(answer, v.(string))
	}
	return answer, nil
}

func (g *Gdb) sourceFiles(pattern string, group *ThreadGroup) ([]string, error) {
	command := "sources"
	if pattern != "" {
		command += " " + pattern
	}
	reply, err := g.execCMD(command, groupScope(group))
	if err != nil {
		return nil, err
	}
	list, _ := reply.([]interface{})
	answer := make([]string, 0, len(list))
	for _, f := range list {
		if s, ok := f.(string); ok {
			answer = append(answer, s)
		}
	}
	return answer, nil
}

// Evaluate 求值一个表达式，返回gdb打印的结果
func (g *Gdb) Evaluate(expr string, scope Scope) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	result, err := g.execMI(`-data-evaluate-expression "`+escapeText(expr)+`"`, scope)
	if err != nil {
		return "", err
	}
	return getStringFromMap(result, "value"), nil
}

// Globals 所有全局变量
// 结果memo在进程范围内，重新Init才会重建
func (g *Gdb) Globals() ([]GlobalVariable, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.correlator.closedErr(); err != nil {
		return nil, err
	}
	if g.globalVars != nil {
		return g.globalVars, nil
	}
	body, err := g.execCLI("info variables", nil)
	if err != nil {
		return nil, err
	}
	g.globalVars = ParseInfoVariables(body)
	return g.globalVars, nil
}

// Exit 退出gdb
func (g *Gdb) Exit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.sendMI("-gdb-exit")
	return err
}

// ExecPy 在gdb里执行一段python
func (g *Gdb) ExecPy(src string, scope Scope) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := validateScript(src); err != nil {
		return "", err
	}
	return g.execCLI("python\n"+src, scope)
}

// ExecCLI 执行cli命令，返回console回显正文
func (g *Gdb) ExecCLI(command string, scope Scope) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.execCLI(command, scope)
}

// ExecMI 执行mi命令，返回result payload
func (g *Gdb) ExecMI(command string, scope Scope) (map[string]interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.execMI(command, scope)
}

// ExecCMD 执行gdbjs自定义命令，返回帧内解码后的json
func (g *Gdb) ExecCMD(command string, scope Scope) (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.execCMD(command, scope)
}

func threadScope(thread *Thread) Scope {
	if thread == nil {
		return nil
	}
	return thread
}

func groupScope(group *ThreadGroup) Scope {
	if group == nil {
		return nil
	}
	return group
}
