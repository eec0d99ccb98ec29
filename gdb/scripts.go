package gdb

import (
	"embed"
	"strings"
)

// 调试器侧的辅助脚本。Init时逐个注入，gdb的python命令共享
// 一个全局命名空间，所以base要先于依赖它的脚本
//
//go:embed scripts/*.py
var scriptFS embed.FS

var scriptOrder = []string{
	"base.py",
	"event.py",
	"concat.py",
	"exec.py",
	"context.py",
	"sources.py",
	"group.py",
	"thread.py",
	"objfile.py",
}

// maxScriptLen 单个脚本的长度上限
// gdb对命令行长度有限制，超长的脚本直接拒绝
const maxScriptLen = 3500

func helperScripts() ([]string, error) {
	scripts := make([]string, 0, len(scriptOrder))
	for _, name := range scriptOrder {
		data, err := scriptFS.ReadFile("scripts/" + name)
		if err != nil {
			return nil, err
		}
		src := string(data)
		if err := validateScript(src); err != nil {
			return nil, err
		}
		scripts = append(scripts, src)
	}
	return scripts, nil
}

func validateScript(src string) error {
	if strings.TrimSpace(src) == "" {
		return ErrScriptEmpty
	}
	if len(src) > maxScriptLen {
		return ErrScriptTooLong
	}
	return nil
}

// escaper mi命令里的c-string转义，反斜杠必须第一个处理
var escaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	`"`, `\"`,
)

// escapeText 把任意文本编码成可以嵌进mi c-string的形式
func escapeText(text string) string {
	return escaper.Replace(text)
}
