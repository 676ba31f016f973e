package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// ErrAborted is returned when the operator cancels a prompt with Ctrl+C.
var ErrAborted = errors.New("prompt aborted")

// Prompter reads operator input. Password never echoes on a terminal.
type Prompter interface {
	Prompt(label string) (string, error)
	Password(label string) (string, error)
	Close() error
}

// NewPrompter picks a line editor for interactive terminals and a plain
// scanner for pipes and scripted input.
func NewPrompter(in *os.File, out io.Writer) Prompter {
	if term.IsTerminal(int(in.Fd())) {
		return newLinePrompter()
	}
	return NewScanPrompter(in, out)
}

type linePrompter struct {
	st *liner.State
}

func newLinePrompter() *linePrompter {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	return &linePrompter{st: st}
}

func (p *linePrompter) Prompt(label string) (string, error) {
	line, err := p.st.Prompt(label)
	if err != nil {
		return "", mapLinerErr(err)
	}
	if line != "" {
		p.st.AppendHistory(line)
	}
	return line, nil
}

func (p *linePrompter) Password(label string) (string, error) {
	line, err := p.st.PasswordPrompt(label)
	if err != nil {
		return "", mapLinerErr(err)
	}
	return line, nil
}

func (p *linePrompter) Close() error { return p.st.Close() }

func mapLinerErr(err error) error {
	if errors.Is(err, liner.ErrPromptAborted) {
		return ErrAborted
	}
	return err
}

// ScanPrompter reads one line per prompt from r.
type ScanPrompter struct {
	sc  *bufio.Scanner
	out io.Writer
}

func NewScanPrompter(r io.Reader, out io.Writer) *ScanPrompter {
	return &ScanPrompter{sc: bufio.NewScanner(r), out: out}
}

func (p *ScanPrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.sc.Text(), nil
}

func (p *ScanPrompter) Password(label string) (string, error) { return p.Prompt(label) }

func (p *ScanPrompter) Close() error { return nil }
