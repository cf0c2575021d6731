package main

import (
	"context"
	"io"
	"os/exec"
	"syscall"

	"github.com/danielgatis/go-vte/vtparser"
)

// https://stackoverflow.com/questions/71714228/go-exec-commandcontext-is-not-being-terminated-after-context-timeout

type Cmd struct {
	ctx context.Context
	*exec.Cmd

	waitDone chan struct{}
}

// NewCommand is like exec.CommandContext but ensures that subprocesses
// are killed when the context is done, not just the top level process.
func NewCommand(ctx context.Context, command string, args ...string) *Cmd {
	return &Cmd{ctx: ctx, Cmd: exec.Command(command, args...)}
}

func (c *Cmd) Start() error {
	// Force-enable setpgid bit so the whole group can be killed.
	if c.Cmd.SysProcAttr == nil {
		c.Cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	c.Cmd.SysProcAttr.Setpgid = true
	if err := c.Cmd.Start(); err != nil {
		return err
	}

	waitDone := make(chan struct{})
	go func() {
		select {
		case <-c.ctx.Done():
		case <-waitDone:
			return
		}
		if p := c.Cmd.Process; p != nil {
			// Negative PID kills the process group.
			_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
		}
	}()
	c.waitDone = waitDone
	return nil
}

func (c *Cmd) Wait() error {
	err := c.Cmd.Wait()
	if c.waitDone != nil {
		close(c.waitDone)
		c.waitDone = nil
	}
	return err
}

func (c *Cmd) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}

type lineParser struct {
	line     string
	lineChan chan<- string
}

func (p *lineParser) Print(r rune) {
	p.line += string(r)
}

func (p *lineParser) Execute(b byte) {
	if b == 0x0d || b == 0x0a {
		p.flush()
	}
}

func (p *lineParser) flush() {
	if p.line != "" {
		p.lineChan <- p.line
	}
	p.line = ""
}

// parseOutput feeds the merged stdout and stderr of the command through a VT
// parser and sends every non-empty line on lineChan. lineChan is closed at EOF
// and the read error (nil on EOF) is sent on the returned channel.
func (c *Cmd) parseOutput(lineChan chan<- string) (<-chan error, error) {
	cmdReader, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	c.Stderr = c.Stdout

	errChan := make(chan error, 1)
	go func() {
		defer close(lineChan)
		lp := &lineParser{lineChan: lineChan}
		parser := vtparser.New(lp.Print, lp.Execute, nil, nil, nil, nil, nil, nil)
		buf := make([]byte, 4096)
		for {
			n, err := cmdReader.Read(buf)
			for i := 0; i < n; i++ {
				parser.Advance(buf[i])
			}
			if err != nil {
				lp.flush()
				if err == io.EOF { // We consider EOF as not an error.
					err = nil
				}
				errChan <- err
				return
			}
		}
	}()
	return errChan, nil
}

// RunAndProcessOutput runs the command and calls processLine for every output
// line. canceled is true if the command's context ended the run.
func (c *Cmd) RunAndProcessOutput(processLine func(line string)) (canceled bool, err error) {
	lineChan := make(chan string)
	errChan, err := c.parseOutput(lineChan)
	if err != nil {
		return false, err
	}
	if err = c.Start(); err != nil {
		return false, err
	}

	for line := range lineChan {
		processLine(line)
	}
	readErr := <-errChan
	err = c.Wait()

	if c.ctx.Err() != nil {
		return true, nil
	}
	if err == nil {
		err = readErr
	}
	return false, err
}
