package gdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordClassification(t *testing.T) {
	tests := []struct {
		line  string
		typ   RecordType
		class string
	}{
		{`^done`, ResultRecord, "done"},
		{`^running`, ResultRecord, "running"},
		{`^connected`, ResultRecord, "connected"},
		{`^error,msg="Undefined command"`, ResultRecord, "error"},
		{`^exit`, ResultRecord, "exit"},
		{`*stopped,reason="end-stepping-range"`, ExecRecord, "stopped"},
		{`*running,thread-id="all"`, ExecRecord, "running"},
		{`+download,{section=".text"}`, StatusRecord, "download"},
		{`=thread-group-added,id="i1"`, NotifyRecord, "thread-group-added"},
		{`~"hello\n"`, ConsoleRecord, ""},
		{`@"output"`, TargetRecord, ""},
		{`&"warning\n"`, LogRecord, ""},
		{`(gdb) `, PromptRecord, ""},
		{`(gdb)`, PromptRecord, ""},
		{`Reading symbols from /bin/ls...`, RawRecord, ""},
		{``, RawRecord, ""},
	}
	for _, test := range tests {
		record := ParseRecord(test.line)
		assert.Equal(t, test.typ, record.Type, "line: %s", test.line)
		assert.Equal(t, test.class, record.Class, "line: %s", test.line)
	}
}

func TestParseRecordToken(t *testing.T) {
	record := ParseRecord(`99^done,value="42"`)
	assert.Equal(t, ResultRecord, record.Type)
	assert.Equal(t, "99", record.Token)
	assert.Equal(t, "42", getStringFromMap(record.Data, "value"))

	record = ParseRecord(`^done`)
	assert.Equal(t, "", record.Token)
}

func TestParseBreakpointResult(t *testing.T) {
	line := `^done,bkpt={number="1",type="breakpoint",disp="keep",enabled="y",` +
		`addr="0x00000000000023c5",func="main.main",file="dev_0.go",` +
		`fullname="/projects/nvlv/cmd/dev_0.go",line="33",times="0",original-location="main.main"}`
	record := ParseRecord(line)
	require.Equal(t, ResultRecord, record.Type)
	bkpt := getInterfaceFromMap(record.Data, "bkpt")
	require.NotNil(t, bkpt)
	assert.Equal(t, "1", getStringFromMap(bkpt, "number"))
	assert.Equal(t, "main.main", getStringFromMap(bkpt, "func"))
	assert.Equal(t, 33, getIntFromMap(bkpt, "line"))
}

func TestParseStoppedRecord(t *testing.T) {
	line := `*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",` +
		`frame={addr="0x00000000000023c5",func="main.main",args=[],` +
		`file="dev_0.go",fullname="/projects/nvlv/cmd/dev_0.go",line="33"},` +
		`thread-id="2",stopped-threads="all"`
	record := ParseRecord(line)
	require.Equal(t, ExecRecord, record.Type)
	assert.Equal(t, "stopped", record.Class)
	assert.Equal(t, "breakpoint-hit", getStringFromMap(record.Data, "reason"))
	frame := getInterfaceFromMap(record.Data, "frame")
	assert.Equal(t, 33, getIntFromMap(frame, "line"))
	args, ok := getInterfaceFromMap(frame, "args").([]interface{})
	require.True(t, ok)
	assert.Empty(t, args)
}

// stack是一个result列表，同名的frame项应该collapse成有序列表
func TestParseListOfResults(t *testing.T) {
	line := `^done,stack=[frame={level="0",func="main"},frame={level="1",func="runtime.main"}]`
	record := ParseRecord(line)
	require.Equal(t, ResultRecord, record.Type)
	stack := getInterfaceFromMap(record.Data, "stack")
	frames := getMultiFromMap(stack, "frame")
	require.Len(t, frames, 2)
	assert.Equal(t, "main", getStringFromMap(frames[0], "func"))
	assert.Equal(t, 1, getIntFromMap(frames[1], "level"))
}

func TestParseListOfValues(t *testing.T) {
	record := ParseRecord(`^done,files=["/a/main.c","/a/util.c"]`)
	files := getListFromMap(record.Data, "files")
	require.Len(t, files, 2)
	assert.Equal(t, "/a/main.c", files[0])

	record = ParseRecord(`^done,threads=[{id="1"},{id="2"}]`)
	threads := getListFromMap(record.Data, "threads")
	require.Len(t, threads, 2)
	assert.Equal(t, 2, getIntFromMap(threads[1], "id"))
}

func TestParseEmptyContainers(t *testing.T) {
	record := ParseRecord(`^done,data={},list=[]`)
	data, ok := getInterfaceFromMap(record.Data, "data").(map[string]interface{})
	require.True(t, ok)
	assert.Empty(t, data)
	list, ok := getInterfaceFromMap(record.Data, "list").([]interface{})
	require.True(t, ok)
	assert.Empty(t, list)
}

// 第一个项就没有名字时绑定在合成键unnamed下，
// 这是解析器唯一会发明名字的地方
func TestParseAnonymousResult(t *testing.T) {
	record := ParseRecord(`+download,{section=".isr_vector",section-size="776"}`)
	require.Equal(t, StatusRecord, record.Type)
	assert.Equal(t, "download", record.Class)
	unnamed := getInterfaceFromMap(record.Data, "unnamed")
	require.NotNil(t, unnamed)
	assert.Equal(t, ".isr_vector", getStringFromMap(unnamed, "section"))
	assert.Equal(t, "776", getStringFromMap(unnamed, "section-size"))
}

func TestParseNameWithUnderscore(t *testing.T) {
	line := `^done,name="v1",numchild="0",value="1",type="int",thread-id="1",has_more="0"`
	record := ParseRecord(line)
	require.Equal(t, ResultRecord, record.Type)
	assert.Equal(t, "0", getStringFromMap(record.Data, "has_more"))
	assert.Equal(t, "1", getStringFromMap(record.Data, "thread-id"))
}

// breakpoint-modified在多位置断点时产生同名的bkpt项，
// 后续未命名的tuple继承前一项的名字并collapse成列表
func TestParseMultipleLocationBreakpoint(t *testing.T) {
	line := `=breakpoint-modified,bkpt={number="1",addr="<MULTIPLE>",times="1"},` +
		`{number="1.1",func="foo<int>",file="/p/t.cc"},` +
		`{number="1.2",func="foo<double>",file="/p/t.cc"}`
	record := ParseRecord(line)
	require.Equal(t, NotifyRecord, record.Type)
	bkpts := getMultiFromMap(record.Data, "bkpt")
	require.Len(t, bkpts, 3)
	assert.Equal(t, "<MULTIPLE>", getStringFromMap(bkpts[0], "addr"))
	assert.Equal(t, "foo<int>", getStringFromMap(bkpts[1], "func"))
	assert.Equal(t, "foo<double>", getStringFromMap(bkpts[2], "func"))
}

func TestParseCStringEscapes(t *testing.T) {
	record := ParseRecord(`~"line1\nline2\ttab \"quoted\" back\\slash\r"`)
	require.Equal(t, ConsoleRecord, record.Type)
	assert.Equal(t, "line1\nline2\ttab \"quoted\" back\\slash\r", record.Data)

	// utf-8原样透传
	record = ParseRecord(`~"中文输出\n"`)
	assert.Equal(t, "中文输出\n", record.Data)
}

func TestParseMalformedLines(t *testing.T) {
	lines := []string{
		`^`,
		`^done,`,
		`^done,name=`,
		`^done,name="unterminated`,
		`^done,={}`,
		`~no-quote`,
		`~"unterminated`,
		`*stopped,frame={level="0"`,
		`123`,
	}
	for _, line := range lines {
		record := ParseRecord(line)
		assert.Equal(t, RawRecord, record.Type, "line: %s", line)
		assert.Equal(t, line, record.Data, "line: %s", line)
	}
}

// 解析是纯函数，同一行解析多次结果一致
func TestParsePure(t *testing.T) {
	line := `*stopped,reason="breakpoint-hit",bkptno="1",thread-id="1"`
	first := ParseRecord(line)
	second := ParseRecord(line)
	assert.Equal(t, first, second)
}
