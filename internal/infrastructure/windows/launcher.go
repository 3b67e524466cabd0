package windows

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Launcher starts the process that hosts a window.
type Launcher interface {
	Launch(window string) (Process, error)
}

// Process is a launched window process.
type Process interface {
	Stop() error
}

// CommandLauncher runs a fixed command per window. The window name is passed
// in SESSIONHOST_WINDOW.
type CommandLauncher struct {
	Command []string
	Grace   time.Duration
}

// Launch starts the command.
func (l CommandLauncher) Launch(window string) (Process, error) {
	if len(l.Command) == 0 {
		return nil, errors.New("launch command is empty")
	}
	cmd := exec.Command(l.Command[0], l.Command[1:]...)
	cmd.Env = append(os.Environ(), "SESSIONHOST_WINDOW="+window)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", l.Command[0], err)
	}

	p := &cmdProcess{cmd: cmd, grace: l.Grace, exited: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

type cmdProcess struct {
	cmd      *exec.Cmd
	grace    time.Duration
	exited   chan struct{}
	waitErr  error
	stopOnce sync.Once
	stopErr  error
}

// Stop interrupts the process and kills it if it outlives the grace period.
func (p *cmdProcess) Stop() error {
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}

		grace := p.grace
		if grace <= 0 {
			grace = 2 * time.Second
		}
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			p.stopErr = p.cmd.Process.Kill()
			<-p.exited
			return
		}
		select {
		case <-p.exited:
		case <-time.After(grace):
			p.stopErr = p.cmd.Process.Kill()
			<-p.exited
		}
	})
	return p.stopErr
}
