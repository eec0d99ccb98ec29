package gdb

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/fansqz/gdb-mi/utils/gosync"
)

// DefaultToken cli命令回显的默认魔法前缀
const DefaultToken = "GDBJS^"

// Option 创建包装器的配置
type Option struct {
	// Path gdb可执行文件路径，默认"gdb"（仅Spawn使用）
	Path string
	// Args 传给gdb的额外参数（仅Spawn使用）
	Args []string
	// TTY 给inferior用的终端路径（仅Spawn使用）
	// 为空时Spawn自己分配一个pty，目标程序的输入输出走Read/Write；
	// 指定外部终端时Read/Write不可用
	TTY string
	// Token cli回显前缀，默认DefaultToken
	Token string
	// RawOutput 把prompt和无法解析的行当作target输出发布
	RawOutput bool
	// Interrupt 非async模式下的中断能力，一般是给gdb进程发SIGINT
	// Spawn会自动填上，接管外部流时由调用方提供
	Interrupt func() error
}

// Gdb 对一个gdb子进程mi流的包装
//
// 同一时刻最多只有一个公共操作在执行（mu串行化）。
// gdb里的当前线程/线程组是唯一的全局可变状态，对它的扰动
// 都被串行化锁和preserve-thread事务保护。
type Gdb struct {
	emitter

	stdin  io.Writer
	stdout io.Reader

	correlator *correlator

	// mu 串行化公共操作。内部原语之间互相调用不重复加锁
	mu sync.Mutex

	token     string
	rawOutput bool
	interrupt func() error

	// async 是否启用了mi-async模式，决定Interrupt的实现方式
	async bool

	// globalVars info variables结果的memo，Init时失效
	globalVars []GlobalVariable

	// Spawn创建时持有的进程和inferior pty
	cmd *exec.Cmd
	ptm *os.File
	pts *os.File
}

// NewOnStreams 接管一对已经存在的gdb mi流
// gdb需要以--interpreter=mi启动；目标程序和mi共用一个fd时
// 两者的输出无法可靠区分，建议用--tty给inferior单独分配终端
func NewOnStreams(stdin io.Writer, stdout io.Reader, opt *Option) *Gdb {
	if opt == nil {
		opt = &Option{}
	}
	token := opt.Token
	if token == "" {
		token = DefaultToken
	}
	g := &Gdb{
		stdin:      stdin,
		stdout:     stdout,
		correlator: newCorrelator(),
		token:      token,
		rawOutput:  opt.RawOutput,
		interrupt:  opt.Interrupt,
	}
	gosync.Go(context.Background(), func(ctx context.Context) {
		g.run()
	})
	return g
}

// On 注册事件观察者，同一事件可以挂多个，互不消费
func (g *Gdb) On(name string, handler Handler) {
	g.on(name, handler)
}

// Off 移除某个事件上的所有观察者
func (g *Gdb) Off(name string) {
	g.off(name)
}

// shutdown gdb进程退出或者输出流关闭
// 所有pending请求被拒绝，后续公共调用快速失败
func (g *Gdb) shutdown() {
	g.correlator.fail(ErrProcessTerminated)
}

// send 写入一条换行结尾的命令并入队等待配对
// 入队先于写入，保证读取协程看到的result永远有队首请求可配
func (g *Gdb) send(interp interpreter, command string) (*pendingRequest, error) {
	req := newPendingRequest(command, interp)
	if err := g.correlator.enqueue(req); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(g.stdin, command+"\n"); err != nil {
		g.shutdown()
		return nil, ErrProcessTerminated
	}
	<-req.done
	if req.err != nil {
		return nil, req.err
	}
	return req, nil
}

// sendMI mi命令在result记录到达时完成
func (g *Gdb) sendMI(command string) (map[string]interface{}, error) {
	req, err := g.send(miInterpreter, command)
	if err != nil {
		return nil, err
	}
	return req.result, nil
}

// sendConsole 把一条cli文本包装成-interpreter-exec console发出去
func (g *Gdb) sendConsole(cliText string) (*pendingRequest, error) {
	wrapped := `-interpreter-exec console "` + escapeText(cliText) + `"`
	return g.send(cliInterpreter, wrapped)
}

// sendCLI cli命令经过concat辅助命令加上魔法前缀，
// 应答是console回显里剥掉前缀的正文
func (g *Gdb) sendCLI(command string) (string, error) {
	req, err := g.sendConsole("concat " + g.token + " " + command)
	if err != nil {
		return "", err
	}
	body, _ := req.echo.(string)
	return body, nil
}

// sendCMD 执行一条gdbjs自定义命令，应答是帧内解码后的json
func (g *Gdb) sendCMD(cliText string) (interface{}, error) {
	req, err := g.sendConsole(cliText)
	if err != nil {
		return nil, err
	}
	return req.echo, nil
}

// miCommand 在mi命令头部注入作用域选项
func miCommand(command string, scope Scope) string {
	var opt string
	switch s := scope.(type) {
	case *Thread:
		if s == nil {
			return command
		}
		opt = fmt.Sprintf("--thread %d", s.ID)
	case *ThreadGroup:
		if s == nil {
			return command
		}
		opt = fmt.Sprintf("--thread-group i%d", s.ID)
	default:
		return command
	}
	head, rest, found := strings.Cut(command, " ")
	if !found {
		return head + " " + opt
	}
	return head + " " + opt + " " + rest
}

// execMI 执行mi命令
// 注入--thread-group会悄悄改变当前线程，必须包在preserve-thread事务里
func (g *Gdb) execMI(command string, scope Scope) (map[string]interface{}, error) {
	if tg, ok := scope.(*ThreadGroup); ok && tg != nil {
		var result map[string]interface{}
		err := g.withThreadPreserved(func() error {
			var err error
			result, err = g.sendMI(miCommand(command, tg))
			return err
		})
		return result, err
	}
	return g.sendMI(miCommand(command, scope))
}

// execCLI 执行cli命令
// 线程作用域用thread apply实现，线程组作用域先切inferior再执行，
// 切换包在preserve-thread事务里
func (g *Gdb) execCLI(command string, scope Scope) (string, error) {
	switch s := scope.(type) {
	case *Thread:
		if s != nil {
			command = fmt.Sprintf("thread apply %d %s", s.ID, command)
		}
	case *ThreadGroup:
		if s != nil {
			var out string
			err := g.withThreadPreserved(func() error {
				if _, err := g.sendCLI(fmt.Sprintf("inferior %d", s.ID)); err != nil {
					return err
				}
				var err error
				out, err = g.sendCLI(command)
				return err
			})
			return out, err
		}
	}
	return g.sendCLI(command)
}

// execCMD 执行gdbjs自定义命令，应答是json
func (g *Gdb) execCMD(command string, scope Scope) (interface{}, error) {
	cliText := "gdbjs-" + command
	switch s := scope.(type) {
	case *Thread:
		if s != nil {
			cliText = fmt.Sprintf("thread apply %d %s", s.ID, cliText)
		}
	case *ThreadGroup:
		if s != nil {
			var reply interface{}
			err := g.withThreadPreserved(func() error {
				if _, err := g.sendCLI(fmt.Sprintf("inferior %d", s.ID)); err != nil {
					return err
				}
				var err error
				reply, err = g.sendCMD(cliText)
				return err
			})
			return reply, err
		}
	}
	return g.sendCMD(cliText)
}

// withThreadPreserved 执行fn前记下当前线程，执行后恢复
// 没有选中线程（或者辅助命令不可用）时不做恢复
func (g *Gdb) withThreadPreserved(fn func() error) error {
	thread, err := g.currentThread()
	if err != nil {
		thread = nil
	}
	ferr := fn()
	if thread != nil {
		if _, err := g.sendMI(fmt.Sprintf("-thread-select %d", thread.ID)); err != nil && ferr == nil {
			ferr = err
		}
	}
	return ferr
}

// currentThread 当前线程，没有选中线程时返回nil
func (g *Gdb) currentThread() (*Thread, error) {
	reply, err := g.execCMD("thread", nil)
	if err != nil {
		return nil, err
	}
	return threadFromJSON(reply), nil
}

// execPython 通过mi往gdb里灌一段python脚本，只等result不取回显
func (g *Gdb) execPython(src string) error {
	if err := validateScript(src); err != nil {
		return err
	}
	_, err := g.sendMI(`-interpreter-exec console "python\n` + escapeText(src) + `"`)
	return err
}
