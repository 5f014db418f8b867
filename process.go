package sigqueue

import (
	"errors"
	"io"
	"os/exec"
	"sync"
)

// ErrProcessRunning is returned by [Command.Start] while a previous run of
// the command has not yet finished.
var ErrProcessRunning = errors.New("sigqueue: process is already running")

// Termination distinguishes how a process ended.
type Termination int

const (
	// NormalExit means the process ran to completion and returned an exit
	// code, zero or not.
	NormalExit Termination = iota

	// CrashExit means the process was terminated abnormally (killed by a
	// signal, or it could not be tracked to completion).
	CrashExit
)

// String implements fmt.Stringer.
func (t Termination) String() string {
	switch t {
	case NormalExit:
		return "normal"
	case CrashExit:
		return "crash"
	default:
		return "unknown"
	}
}

// ExitStatus is the single emission of a process-completion source.
type ExitStatus struct {
	// Code is the exit code for a NormalExit, -1 otherwise.
	Code int

	Termination Termination
}

// ProcessSource is a process controller whose completion is observable as a
// [Source]: [Command] for real subprocesses, or a fake in tests.
type ProcessSource interface {
	// Start launches the process. It returns an error if the launch fails
	// or a run is already in flight; in either case Finished will not emit
	// for this call.
	Start(name string, args ...string) error

	// Running reports whether a started process has not yet finished.
	Running() bool

	// Finished emits exactly one ExitStatus per successfully started run.
	Finished() Source[ExitStatus]
}

// RunProcess starts a process and suspends the calling coroutine until it
// finishes, returning its exit status. The completion subscription is
// registered before Start, so a process that exits instantly cannot slip
// its emission past the waiter.
func RunProcess(co *Coroutine, p ProcessSource, name string, args ...string) (ExitStatus, error) {
	l, err := ListenLatch(co.Reactor(), p.Finished())
	if err != nil {
		return ExitStatus{}, err
	}
	if err := p.Start(name, args...); err != nil {
		l.Cancel()
		return ExitStatus{}, err
	}
	return l.Await(co)
}

// Command runs subprocesses via os/exec, surfacing completion and output as
// reactor-dispatched events. It implements [ProcessSource]; its Stdout and
// Stderr methods expose [StreamSource] views suitable for [StreamBytes] and
// [StreamText].
//
// The blocking syscalls (pipe reads, wait) run on their own goroutines;
// every observable effect is marshalled onto the reactor's dispatch thread
// via ScheduleNow, so subscribers see the same single-threaded world as the
// rest of the package.
//
// A Command is reusable: once a run finishes, Start may be called again.
// The output streams carry over, which is usually what a retry loop wants;
// construct a fresh Command otherwise.
type Command struct {
	reactor Reactor

	// Stdin, Dir and Env configure the next Start, with os/exec semantics.
	Stdin io.Reader
	Dir   string
	Env   []string

	running  bool
	finished Emitter[ExitStatus]
	stdout   *pipeStream
	stderr   *pipeStream
}

// NewCommand constructs a Command attached to r.
func NewCommand(r Reactor) *Command {
	if r == nil {
		panic("sigqueue: nil reactor")
	}
	return &Command{
		reactor: r,
		stdout:  &pipeStream{reactor: r},
		stderr:  &pipeStream{reactor: r},
	}
}

// Finished implements [ProcessSource].
func (c *Command) Finished() Source[ExitStatus] { return &c.finished }

// Running implements [ProcessSource].
func (c *Command) Running() bool { return c.running }

// Stdout returns the standard output stream. Subscribe before Start to
// observe the run from its first byte.
func (c *Command) Stdout() StreamSource { return c.stdout }

// Stderr returns the standard error stream.
func (c *Command) Stderr() StreamSource { return c.stderr }

// Start implements [ProcessSource]. Call it from the dispatch thread.
func (c *Command) Start(name string, args ...string) error {
	if c.running {
		return ErrProcessRunning
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = c.Stdin
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	c.running = true

	var wg sync.WaitGroup
	wg.Add(2)
	go c.stdout.run(stdout, &wg)
	go c.stderr.run(stderr, &wg)
	go func() {
		// Both pipes must hit EOF before Wait per os/exec, hence the
		// WaitGroup.
		wg.Wait()
		_ = cmd.Wait()
		st := ExitStatus{Code: -1, Termination: CrashExit}
		if ps := cmd.ProcessState; ps != nil && ps.Exited() {
			st = ExitStatus{Code: ps.ExitCode(), Termination: NormalExit}
		}
		_ = c.reactor.ScheduleNow(func() {
			c.running = false
			c.finished.Emit(st)
		})
	}()
	return nil
}

// pipeStream adapts one subprocess output pipe to [StreamSource]. The
// reader goroutine appends to the buffer under the mutex and schedules a
// data event per read; ReadAvailable drains on the dispatch thread.
type pipeStream struct {
	reactor Reactor

	mu  sync.Mutex
	buf []byte

	data   Emitter[struct{}]
	closed Emitter[struct{}]
}

// Data implements [StreamSource].
func (p *pipeStream) Data() Source[struct{}] { return &p.data }

// Closed implements [StreamSource].
func (p *pipeStream) Closed() Source[struct{}] { return &p.closed }

// ReadAvailable implements [StreamSource], returning and clearing all bytes
// buffered so far.
func (p *pipeStream) ReadAvailable() []byte {
	p.mu.Lock()
	b := p.buf
	p.buf = nil
	p.mu.Unlock()
	return b
}

func (p *pipeStream) run(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.buf = append(p.buf, buf[:n]...)
			p.mu.Unlock()
			_ = p.reactor.ScheduleNow(func() {
				p.data.Emit(struct{}{})
			})
		}
		if err != nil {
			// EOF or a broken pipe; either way the stream is over.
			_ = p.reactor.ScheduleNow(func() {
				p.closed.Emit(struct{}{})
			})
			return
		}
	}
}
