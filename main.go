package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/fansqz/gdb-mi/gdb"
	"github.com/fansqz/gdb-mi/utils/gosync"
)

// 定义版本号
const Version = "1.0.0"

func main() {
	//启动日志
	SetupLogger()
	defer CloseLogger()

	showVersion := flag.Bool("version", false, "Show the version number")
	port := flag.String("port", "8889", "TCP port to listen on")
	gdbPath := flag.String("gdb", "gdb", "Path of the gdb executable")
	execFile := flag.String("file", "", "Exec file")
	tty := flag.String("tty", "", "Terminal for the inferior, a pty is allocated when empty")
	flag.Parse()

	// 检查是否需要显示版本信息
	if *showVersion {
		fmt.Printf("Version: %s\n", Version)
		return
	}
	if *execFile == "" {
		fmt.Println("exec file cannot be empty")
		return
	}

	// 监听端口
	listener, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		fmt.Printf("listening at %s fail: %v\n", *port, err)
		return
	}
	defer listener.Close()
	fmt.Printf("started listening at: %s\n", listener.Addr().String())

	// 启动gdb并加载目标程序
	g, err := startGdb(*gdbPath, *execFile, *tty)
	if err != nil {
		log.Printf("start gdb fail, err = %s\n", err)
		return
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("Connection failed: %v\n", err)
			continue
		}
		// Handle multiple client connections concurrently
		go handleConnection(conn, g)
	}
}

// startGdb 启动gdb，注入辅助脚本并加载目标程序
// tty为空时inferior走Spawn分配的pty，用户输入从本进程标准输入转发
func startGdb(path string, execFile string, tty string) (*gdb.Gdb, error) {
	g, err := gdb.Spawn(&gdb.Option{Path: path, TTY: tty})
	if err != nil {
		return nil, err
	}
	if err = g.Init(); err != nil {
		return nil, err
	}
	if err = g.EnableAsync(); err != nil {
		log.Printf("enable mi-async fail, err = %s\n", err)
	}
	if _, err = g.ExecMI("-file-exec-and-symbols "+execFile, nil); err != nil {
		return nil, err
	}
	if g.TTY() != "" {
		fmt.Printf("inferior tty: %s\n", g.TTY())
		// 启动协程转发用户输入
		gosync.Go(context.Background(), func(ctx context.Context) {
			processUserInput(g)
		})
	}
	return g, nil
}

// processUserInput 循环读取用户输入转发给目标程序
func processUserInput(g *gdb.Gdb) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if _, err := g.Write(append(scanner.Bytes(), '\n')); err != nil {
			return
		}
	}
}
