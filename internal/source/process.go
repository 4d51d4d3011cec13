package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const defaultGrace = 2 * time.Second

// Process spawns a command and streams its merged stdout and stderr.
type Process struct {
	Args []string
	Dir  string
	Env  []string
	// OneShot disables respawning after the command exits.
	OneShot bool
	// Grace is the time between SIGTERM and SIGKILL on close.
	Grace time.Duration
}

// NewProcess splits a command line on whitespace.
func NewProcess(cmdline string, oneShot bool) *Process {
	return &Process{Args: strings.Fields(cmdline), OneShot: oneShot}
}

func (p *Process) Kind() Kind { return KindProcess }

func (p *Process) Identity() string { return strings.Join(p.Args, " ") }

func (p *Process) Reconnectable() bool { return !p.OneShot }

func (p *Process) Open(ctx context.Context) (io.ReadCloser, error) {
	if len(p.Args) == 0 {
		return nil, Permanent(errors.New("empty command"))
	}
	path, err := exec.LookPath(p.Args[0])
	if err != nil {
		return nil, Permanent(err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(path, p.Args[1:]...)
	cmd.Dir = p.Dir
	cmd.Env = p.Env
	cmd.Stdout = w
	cmd.Stderr = w
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("spawn %s: %w", p.Args[0], err)
	}
	w.Close()

	grace := p.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	conn := &processConn{cmd: cmd, out: r, grace: grace, exited: make(chan struct{})}
	go conn.wait()
	return conn, nil
}

type processConn struct {
	cmd     *exec.Cmd
	out     *os.File
	grace   time.Duration
	exited  chan struct{}
	waitErr error
	once    sync.Once
}

func (c *processConn) wait() {
	c.waitErr = c.cmd.Wait()
	close(c.exited)
}

// Read returns io.EOF after a clean exit and the exit status otherwise.
func (c *processConn) Read(p []byte) (int, error) {
	n, err := c.out.Read(p)
	if err != io.EOF {
		return n, err
	}
	<-c.exited
	if c.waitErr != nil {
		return n, fmt.Errorf("process exited: %w", c.waitErr)
	}
	return n, io.EOF
}

// Close terminates the whole process group.
func (c *processConn) Close() error {
	c.once.Do(func() {
		select {
		case <-c.exited:
		default:
			signalGroup(c.cmd, false)
			select {
			case <-c.exited:
			case <-time.After(c.grace):
				signalGroup(c.cmd, true)
				<-c.exited
			}
		}
		c.out.Close()
	})
	return nil
}
