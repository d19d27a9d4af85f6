// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/outpost/protocol"
)

// Emit delivers one response payload on the spawning request's stream.
// Implementations must be safe for concurrent use; the server's reply
// handle is.
type Emit func(payload protocol.ResponseArgs)

// Process is one spawned child and its plumbing.
type Process struct {
	id      uint64
	owner   uint64
	spec    protocol.ProcSpawn
	pid     int
	command *exec.Cmd

	// ptyFile is the PTY master for PTY-backed processes, nil for
	// pipe-backed ones.
	ptyFile *os.File

	stdin *stdinQueue

	// emitMu guards emit. A persistent process whose connection went
	// away is detached: emit becomes a no-op and output is dropped.
	emitMu sync.Mutex
	emit   Emit

	done chan struct{}
}

// ID returns the manager-allocated process id.
func (p *Process) ID() uint64 { return p.id }

// Pid returns the OS process id.
func (p *Process) Pid() int { return p.pid }

// Done is closed after the terminal process-done payload has been
// emitted and the process removed from the manager.
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) entry() protocol.ProcEntry {
	return protocol.ProcEntry{
		ID:      p.id,
		Cmd:     p.spec.Cmd,
		Args:    p.spec.Args,
		Persist: p.spec.Persist,
		Pty:     p.spec.Pty,
	}
}

func (p *Process) deliver(payload protocol.ResponseArgs) {
	p.emitMu.Lock()
	emit := p.emit
	p.emitMu.Unlock()
	if emit != nil {
		emit(payload)
	}
}

// detach drops the output path. Used for persistent processes when
// their connection closes; the child keeps running, its output goes
// nowhere.
func (p *Process) detach() {
	p.emitMu.Lock()
	p.emit = nil
	p.emitMu.Unlock()
}

// start launches the child per its spec and begins the io pumps.
// Returns after the OS pid is known; the pumps run until exit.
func (p *Process) start(chunkSize int, onExit func(*Process)) error {
	command := exec.Command(p.spec.Cmd, p.spec.Args...)
	if p.spec.Cwd != "" {
		command.Dir = p.spec.Cwd
	}
	if len(p.spec.Env) > 0 {
		command.Env = os.Environ()
		for name, value := range p.spec.Env {
			command.Env = append(command.Env, name+"="+value)
		}
	}
	p.command = command

	if p.spec.Pty != nil {
		return p.startPty(chunkSize, onExit)
	}
	return p.startPipes(chunkSize, onExit)
}

func (p *Process) startPipes(chunkSize int, onExit func(*Process)) error {
	stdin, err := p.command.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := p.command.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := p.command.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := p.command.Start(); err != nil {
		return err
	}
	p.pid = p.command.Process.Pid
	p.stdin.start(stdin)

	// The spawned event must be the stream's first payload, so it
	// goes out before any output pump can run.
	p.deliver(&protocol.ProcSpawned{ID: p.id, Pid: p.pid})

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.pump(stdout, chunkSize, func(chunk []byte) protocol.ResponseArgs {
			return &protocol.ProcStdout{ID: p.id, Data: chunk}
		})
	}()
	go func() {
		defer readers.Done()
		p.pump(stderr, chunkSize, func(chunk []byte) protocol.ResponseArgs {
			return &protocol.ProcStderr{ID: p.id, Data: chunk}
		})
	}()

	go p.wait(&readers, onExit)
	return nil
}

func (p *Process) startPty(chunkSize int, onExit func(*Process)) error {
	size := &pty.Winsize{Rows: p.spec.Pty.Rows, Cols: p.spec.Pty.Cols}
	master, err := pty.StartWithSize(p.command, size)
	if err != nil {
		return fmt.Errorf("starting pty: %w", err)
	}
	p.ptyFile = master
	p.pid = p.command.Process.Pid
	p.stdin.start(master)

	p.deliver(&protocol.ProcSpawned{ID: p.id, Pid: p.pid})

	// A PTY merges stdout and stderr into the master; everything is
	// reported as stdout.
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		p.pump(master, chunkSize, func(chunk []byte) protocol.ResponseArgs {
			return &protocol.ProcStdout{ID: p.id, Data: chunk}
		})
	}()

	go p.wait(&readers, onExit)
	return nil
}

// pump reads chunks until EOF and emits one payload per chunk. A PTY
// master returns EIO when the child exits; that is its EOF.
func (p *Process) pump(reader io.Reader, chunkSize int, wrap func([]byte) protocol.ResponseArgs) {
	buffer := make([]byte, chunkSize)
	for {
		count, err := reader.Read(buffer)
		if count > 0 {
			chunk := make([]byte, count)
			copy(chunk, buffer[:count])
			p.deliver(wrap(chunk))
		}
		if err != nil {
			return
		}
	}
}

// wait blocks for reader drain and child exit, then emits the
// terminal process-done and hands the record back for removal.
func (p *Process) wait(readers *sync.WaitGroup, onExit func(*Process)) {
	// Wait for the output pumps first: os/exec closes the pipes in
	// Wait, and the done event must be the last payload on the
	// stream.
	readers.Wait()
	waitErr := p.command.Wait()

	p.stdin.close()
	if p.ptyFile != nil {
		p.ptyFile.Close()
	}

	p.deliver(p.doneEvent(waitErr))
	onExit(p)
	close(p.done)
}

// doneEvent translates a Wait result into the terminal payload.
func (p *Process) doneEvent(waitErr error) *protocol.ProcDone {
	event := &protocol.ProcDone{ID: p.id, Success: waitErr == nil}

	var exitError *exec.ExitError
	switch {
	case waitErr == nil:
		code := 0
		event.Code = &code
	case errors.As(waitErr, &exitError):
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			event.Signal = unix.SignalName(status.Signal())
		} else {
			code := exitError.ExitCode()
			event.Code = &code
		}
	default:
		// Wait itself failed (rare: io trouble on a PTY). The child
		// is gone either way; report failure without a code.
	}
	return event
}

// signalKill sends SIGKILL to the child. The exit waiter observes the
// resulting death and emits the terminal done event with the signal
// name.
func (p *Process) signalKill() error {
	if p.command.Process == nil {
		return fmt.Errorf("process %d has no OS handle", p.id)
	}
	if err := p.command.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// resize adjusts the PTY window. Errors with unsupported on
// pipe-backed processes.
func (p *Process) resize(rows, cols uint16) error {
	if p.ptyFile == nil {
		return protocol.NewError(protocol.KindUnsupported,
			"process %d is not attached to a pty", p.id)
	}
	if err := pty.Setsize(p.ptyFile, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resizing pty for process %d: %w", p.id, err)
	}
	return nil
}

// stdinQueue preserves wire arrival order for stdin bytes: the
// connection reader enqueues synchronously (never blocking), and a
// single goroutine writes to the child.
type stdinQueue struct {
	mu     sync.Mutex
	chunks [][]byte
	closed bool
	signal chan struct{}
}

func newStdinQueue() *stdinQueue {
	return &stdinQueue{signal: make(chan struct{}, 1)}
}

// push enqueues bytes for the child's stdin. Returns an error if the
// queue is closed (child gone).
func (q *stdinQueue) push(data []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("stdin closed")
	}
	q.chunks = append(q.chunks, data)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// start launches the writer goroutine feeding the child.
func (q *stdinQueue) start(writer io.Writer) {
	go func() {
		for {
			q.mu.Lock()
			if len(q.chunks) == 0 {
				if q.closed {
					q.mu.Unlock()
					return
				}
				q.mu.Unlock()
				<-q.signal
				continue
			}
			chunk := q.chunks[0]
			q.chunks = q.chunks[1:]
			q.mu.Unlock()

			if _, err := writer.Write(chunk); err != nil {
				// The child closed its stdin or exited; drop the
				// rest.
				q.close()
				return
			}
		}
	}()
}

func (q *stdinQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.chunks = nil
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}
