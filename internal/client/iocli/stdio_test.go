package iocli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Проверяем что NewStdio возвращает валидный объект
func TestNewStdio(t *testing.T) {
	stdio := NewStdio()
	assert.NotNil(t, stdio)
}

func TestStreams_Output(t *testing.T) {
	var out bytes.Buffer
	s := NewStreams(strings.NewReader(""), &out)

	s.Println("hello", "world")
	s.Printf("test %d %s\n", 1, "abc")
	_, err := s.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc\nraw", out.String())
}

// Тест ReadInput: несколько строк из одного буфера
func TestStreams_ReadInput(t *testing.T) {
	var out bytes.Buffer
	s := NewStreams(strings.NewReader("user input\n  second  \nlast"), &out)

	first, err := s.ReadInput("Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "user input", first)

	second, err := s.ReadInput("Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "second", second)

	// Последняя строка без перевода строки
	last, err := s.ReadInput("Prompt: ")
	require.NoError(t, err)
	assert.Equal(t, "last", last)

	_, err = s.ReadInput("Prompt: ")
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, strings.Repeat("Prompt: ", 4), out.String())
}

// Без терминала пароль читается как обычная строка
func TestStreams_ReadPasswordWithoutTerminal(t *testing.T) {
	s := NewStreams(strings.NewReader("secret123\n"), io.Discard)

	password, err := s.ReadPassword("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "secret123", password)
}
