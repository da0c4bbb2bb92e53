package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Stdio - терминальная реализация IO
type Stdio struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm func(fd int) bool
	mu     sync.Mutex
}

func NewStdio() IO {
	return NewStreams(os.Stdin, os.Stdout)
}

// NewStreams создает IO поверх произвольных потоков. Если in - терминал,
// пароль читается без эха.
func NewStreams(in io.Reader, out io.Writer) *Stdio {
	s := &Stdio{
		in:     bufio.NewReader(in),
		out:    out,
		fd:     -1,
		isTerm: term.IsTerminal,
	}
	if f, ok := in.(*os.File); ok {
		s.fd = int(f.Fd())
	}
	return s
}

func (s *Stdio) Println(a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Write(p)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (s *Stdio) ReadPassword(prompt string) (string, error) {
	// Без терминала (pipe, тесты) читаем обычную строку
	if s.fd < 0 || !s.isTerm(s.fd) {
		return s.ReadInput(prompt)
	}

	s.Printf("%s", prompt)
	pwBytes, err := term.ReadPassword(s.fd)
	s.Println("")
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}
