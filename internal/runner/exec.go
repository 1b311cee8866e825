package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/rolechain/internal/eventbridge"
)

const captureLimit = 64 << 10

// Command runs an external program for every wake. Its stdout and stderr are
// streamed through to Stdout/Stderr while the tail is captured for reporting.
type Command struct {
	Args   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Execute starts the program with ROLECHAIN_ROLE and ROLECHAIN_EVENT_ID set.
func (c Command) Execute(ctx context.Context, event eventbridge.WakeEvent) (string, error) {
	if len(c.Args) == 0 {
		return "", fmt.Errorf("runner: no command configured")
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(),
		"ROLECHAIN_ROLE="+event.Role,
		"ROLECHAIN_EVENT_ID="+event.EventID,
		"ROLECHAIN_SEQUENCE="+strconv.FormatInt(event.Sequence, 10),
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", err
	}

	capture := &tailBuffer{limit: captureLimit}
	var g errgroup.Group
	g.Go(func() error { return copyStream(stdout, c.Stdout, capture) })
	g.Go(func() error { return copyStream(stderr, c.Stderr, capture) })
	copyErr := g.Wait()
	waitErr := cmd.Wait()
	if waitErr != nil {
		return capture.String(), waitErr
	}
	return capture.String(), copyErr
}

func copyStream(src io.Reader, passthrough io.Writer, capture io.Writer) error {
	dst := capture
	if passthrough != nil {
		dst = io.MultiWriter(passthrough, capture)
	}
	_, err := io.Copy(dst, src)
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
