package gdb

import (
	"regexp"
	"strings"
)

// info variables输出的结构：
//
//	All defined variables:
//
//	File /path/main.c:
//	int globalInt;
//	char *message;
//
//	File /path/other.c:
//	...
//
// 最后一个File段之后的尾巴（Non-debugging symbols等）忽略

var (
	fileHeaderRe = regexp.MustCompile(`^File (.+):$`)
	// 类型 名字[数组后缀];  名字可以带下划线和数字
	declRe = regexp.MustCompile(`^(.+?[ *])([A-Za-z_]\w*)((?:\[\w*\])*);$`)
)

// ParseInfoVariables 解析info variables的文本输出
// 返回跨所有文件的平铺有序列表
func ParseInfoVariables(text string) []GlobalVariable {
	answer := make([]GlobalVariable, 0, 16)
	file := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if m := fileHeaderRe.FindStringSubmatch(line); m != nil {
			file = m[1]
			continue
		}
		if file == "" {
			continue
		}
		if m := declRe.FindStringSubmatch(line); m != nil {
			answer = append(answer, GlobalVariable{
				File: file,
				Type: strings.TrimSpace(m[1]) + m[3],
				Name: m[2],
			})
		}
	}
	return answer
}
