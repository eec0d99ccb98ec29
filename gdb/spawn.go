package gdb

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/fansqz/gdb-mi/utils/gosync"
)

// Spawn 启动一个gdb子进程并接管它的mi流
//
// 默认给inferior单独分配一个pty并通过--tty传给gdb，目标程序的
// 输入输出走Read/Write，和mi流彻底分开。Option.TTY指定了外部
// 终端时直接使用它，不再分配pty。进程退出时所有pending请求被拒绝
func Spawn(opt *Option) (*Gdb, error) {
	if opt == nil {
		opt = &Option{}
	}
	path := opt.Path
	if path == "" {
		path = "gdb"
	}

	// 没有外部终端时启动一个虚拟终端给inferior
	var ptm, pts *os.File
	tty := opt.TTY
	if tty == "" {
		var err error
		ptm, pts, err = pty.Open()
		if err != nil {
			return nil, err
		}
		if _, err = term.MakeRaw(int(ptm.Fd())); err != nil {
			ptm.Close()
			pts.Close()
			return nil, err
		}
		tty = pts.Name()
	}

	args := append([]string{"--interpreter=mi", "--tty=" + tty}, opt.Args...)
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		ptm.Close()
		pts.Close()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		ptm.Close()
		pts.Close()
		return nil, err
	}
	if err = cmd.Start(); err != nil {
		ptm.Close()
		pts.Close()
		return nil, err
	}

	spawned := *opt
	if spawned.Interrupt == nil {
		spawned.Interrupt = func() error {
			return cmd.Process.Signal(syscall.SIGINT)
		}
	}

	g := NewOnStreams(stdin, stdout, &spawned)
	g.cmd = cmd
	g.ptm = ptm
	g.pts = pts

	// 回收进程，进程退出后拒绝所有pending请求
	gosync.Go(context.Background(), func(ctx context.Context) {
		if err := cmd.Wait(); err != nil {
			logrus.Infof("gdb exited, err = %v", err)
		}
		g.shutdown()
		ptm.Close()
		pts.Close()
	})
	return g, nil
}

// TTY Spawn分配的inferior pty的路径
// 非Spawn创建的实例和使用外部终端的实例返回空串
func (g *Gdb) TTY() string {
	if g.pts == nil {
		return ""
	}
	return g.pts.Name()
}

// Read 读取目标程序的输出
func (g *Gdb) Read(p []byte) (int, error) {
	if g.ptm == nil {
		return 0, io.EOF
	}
	return g.ptm.Read(p)
}

// Write 向目标程序写入输入
func (g *Gdb) Write(p []byte) (int, error) {
	if g.ptm == nil {
		return 0, io.ErrClosedPipe
	}
	return g.ptm.Write(p)
}
