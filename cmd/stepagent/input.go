package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
)

const prompt = "> "

// lineReader yields one operator turn per call. It returns io.EOF or
// readline.ErrInterrupt when the operator is done.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

// newLineReader uses readline for terminals and a plain scanner for pipes.
func newLineReader(in io.Reader, out io.Writer, historyFile string) (lineReader, error) {
	if f, ok := in.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          prompt,
			HistoryFile:     historyFile,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return nil, fmt.Errorf("init readline: %w", err)
		}
		return &terminalReader{rl: rl}, nil
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &scannerReader{scanner: scanner, out: out}, nil
}

type terminalReader struct {
	rl *readline.Instance
}

func (r *terminalReader) ReadLine() (string, error) { return r.rl.Readline() }
func (r *terminalReader) Close() error              { return r.rl.Close() }

type scannerReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (r *scannerReader) ReadLine() (string, error) {
	fmt.Fprint(r.out, prompt)
	if !r.scanner.Scan() {
		fmt.Fprintln(r.out)
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scannerReader) Close() error { return nil }
