package gdb

import (
	"strconv"
	"strings"
)

// 领域实体都是不可变的值对象，每次调用时从mi payload新建，
// 不持有对包装器的引用。

// Scope 线程或者线程组，作为一次操作的作用域注入到命令中
type Scope interface {
	scope()
}

// Thread gdb中的一个线程
type Thread struct {
	ID     int
	Status string
	Group  *ThreadGroup
	Frame  *Frame
}

func (*Thread) scope() {}

// ThreadGroup gdb中的一个inferior
// mi用"i<N>"编码线程组id，这里只保留数字部分，发送命令时再拼回前缀
type ThreadGroup struct {
	ID         int
	Executable string
	PID        int
}

func (*ThreadGroup) scope() {}

// Breakpoint 一个断点
// 模板或者重载函数的断点会命中多个位置，此时Funcs保存全部位置的函数名
type Breakpoint struct {
	ID     int
	File   string
	Line   int
	Func   string
	Funcs  []string
	Thread *Thread
}

// Frame 一个栈帧
type Frame struct {
	File  string
	Line  int
	Func  string
	Level int
}

// Variable 一个变量（来自context命令）
type Variable struct {
	Name  string
	Type  string
	Scope string
	Value string
}

// GlobalVariable info variables输出中的一个全局变量
type GlobalVariable struct {
	File string
	Type string
	Name string
}

// threadFromTuple 从thread-info的一项构造Thread
func threadFromTuple(m interface{}) *Thread {
	t := &Thread{
		ID:     getIntFromMap(m, "id"),
		Status: getStringFromMap(m, "state"),
	}
	if frame := getInterfaceFromMap(m, "frame"); frame != nil {
		t.Frame = frameFromTuple(frame)
	}
	return t
}

// frameFromTuple 从frame tuple构造Frame，优先使用fullname
func frameFromTuple(m interface{}) *Frame {
	file := getStringFromMap(m, "fullname")
	if file == "" {
		file = getStringFromMap(m, "file")
	}
	return &Frame{
		File:  file,
		Line:  getIntFromMap(m, "line"),
		Func:  getStringFromMap(m, "func"),
		Level: getIntFromMap(m, "level"),
	}
}

// breakpointFromResult 从break-insert的payload构造Breakpoint
// bkpt可能是单个tuple，也可能因为多位置断点collapse成一个列表，
// 列表的第一项是组合断点，后续是各个位置
func breakpointFromResult(data map[string]interface{}) *Breakpoint {
	bkpts := getMultiFromMap(data, "bkpt")
	if len(bkpts) == 0 {
		return nil
	}
	first := bkpts[0]
	bp := &Breakpoint{
		ID:   getIntFromMap(first, "number"),
		File: fileFromTuple(first),
		Line: getIntFromMap(first, "line"),
		Func: getStringFromMap(first, "func"),
	}
	if len(bkpts) > 1 {
		for _, loc := range bkpts[1:] {
			if fn := getStringFromMap(loc, "func"); fn != "" {
				bp.Funcs = append(bp.Funcs, fn)
			}
		}
	}
	return bp
}

func fileFromTuple(m interface{}) string {
	if fullname := getStringFromMap(m, "fullname"); fullname != "" {
		return fullname
	}
	return getStringFromMap(m, "file")
}

// threadGroupFromTuple 从list-thread-groups的一项构造ThreadGroup
func threadGroupFromTuple(m interface{}) *ThreadGroup {
	return &ThreadGroup{
		ID:         groupID(getStringFromMap(m, "id")),
		Executable: getStringFromMap(m, "executable"),
		PID:        getIntFromMap(m, "pid"),
	}
}

// groupID 去掉mi线程组id的"i"前缀
func groupID(id string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(id, "i"))
	return n
}

// jsonInt json解码出来的数字是float64，这里统一转成int
func jsonInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	case int:
		return n
	}
	return 0
}

// threadFromJSON 从gdbjs-thread命令的json应答构造Thread
func threadFromJSON(v interface{}) *Thread {
	m, ok := v.(map[string]interface{})
	if !ok || m["id"] == nil {
		return nil
	}
	t := &Thread{ID: jsonInt(m["id"])}
	if group, ok := m["group"].(map[string]interface{}); ok {
		t.Group = &ThreadGroup{
			ID:  jsonInt(group["id"]),
			PID: jsonInt(group["pid"]),
		}
	}
	return t
}

// threadGroupFromJSON 从gdbjs-group命令的json应答构造ThreadGroup
func threadGroupFromJSON(v interface{}) *ThreadGroup {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return &ThreadGroup{
		ID:  jsonInt(m["id"]),
		PID: jsonInt(m["pid"]),
	}
}

// variablesFromJSON 从context命令的json应答构造变量列表
func variablesFromJSON(v interface{}) []*Variable {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	answer := make([]*Variable, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		typ, _ := m["type"].(string)
		scope, _ := m["scope"].(string)
		value, _ := m["value"].(string)
		answer = append(answer, &Variable{Name: name, Type: typ, Scope: scope, Value: value})
	}
	return answer
}
