package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/complydesk/backoffice/internal/ports"
)

var _ ports.ConfirmationPort = (*Terminal)(nil)

// Terminal asks reminder questions on a line-oriented terminal. Input is
// read by a single goroutine so a cancelled question never loses the next
// answer. Lines typed while no question is open are discarded.
type Terminal struct {
	out io.Writer

	// serializes questions
	ask sync.Mutex

	mu     sync.Mutex
	answer chan string // set while a question is open
	done   chan struct{}
}

// NewTerminal starts reading lines from in
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{out: out, done: make(chan struct{})}
	go t.readLoop(in)
	return t
}

func (t *Terminal) readLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		t.deliver(scanner.Text())
	}
	close(t.done)
}

func (t *Terminal) deliver(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.answer == nil {
		return
	}
	select {
	case t.answer <- line:
	default:
	}
}

func (t *Terminal) openQuestion() chan string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answer = make(chan string, 1)
	return t.answer
}

func (t *Terminal) closeQuestion() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answer = nil
}

// Ask prints the reminder and waits for an answer. An empty answer means
// yes; anything starting with "n" means no.
func (t *Terminal) Ask(ctx context.Context, p ports.PromptContext) (bool, error) {
	t.ask.Lock()
	defer t.ask.Unlock()

	answer := t.openQuestion()
	defer t.closeQuestion()

	fmt.Fprintf(t.out, "\nTimer for client %s has been running %s", p.ClientID, p.Elapsed.Round(time.Minute))
	if p.Description != "" {
		fmt.Fprintf(t.out, " (%s)", p.Description)
	}
	fmt.Fprint(t.out, ". Still working? [Y/n] ")

	select {
	case line := <-answer:
		return parseAnswer(line), nil
	case <-t.done:
		// a last line may have arrived just before end of input
		select {
		case line := <-answer:
			return parseAnswer(line), nil
		default:
			return false, io.EOF
		}
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return false, ctx.Err()
	}
}

func parseAnswer(line string) bool {
	answer := strings.ToLower(strings.TrimSpace(line))
	return !strings.HasPrefix(answer, "n")
}
