package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/adapters/llmadvisor"
)

type fakeChatter struct {
	history llmadvisor.History
	sent    []string
	err     error
}

func newFakeChatter() *fakeChatter {
	return &fakeChatter{history: llmadvisor.NewHistory(10, "system")}
}

func (f *fakeChatter) Chat(ctx context.Context, message string) (string, error) {
	f.sent = append(f.sent, message)
	if f.err != nil {
		return "", f.err
	}
	reply := "echo: " + message
	f.history = f.history.Append(
		llmadvisor.Message{Role: llmadvisor.RoleUser, Content: message},
		llmadvisor.Message{Role: llmadvisor.RoleAssistant, Content: reply},
	)
	return reply, nil
}

func (f *fakeChatter) History() llmadvisor.History {
	return f.history
}

func TestChatLoop(t *testing.T) {
	c := newFakeChatter()
	var out bytes.Buffer

	err := chatLoop(context.Background(), c, "seed context", strings.NewReader("hello\n\n/history\n/exit\nignored\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"seed context", "hello"}, c.sent)
	assert.Contains(t, out.String(), "advisor> echo: seed context")
	assert.Contains(t, out.String(), "advisor> echo: hello")
	assert.Contains(t, out.String(), "5 messages in history")
	assert.NotContains(t, out.String(), "ignored")
}

func TestChatLoop_EOFEnds(t *testing.T) {
	c := newFakeChatter()
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), c, "", strings.NewReader("one"), &out))
	assert.Equal(t, []string{"one"}, c.sent)
}

func TestChatLoop_Errors(t *testing.T) {
	c := newFakeChatter()
	c.err = errors.New("model down")
	var out bytes.Buffer

	err := chatLoop(context.Background(), c, "seed", strings.NewReader("hi\n"), &out)
	assert.ErrorContains(t, err, "model down", "a failed seed aborts")

	out.Reset()
	c.sent = nil
	err = chatLoop(context.Background(), c, "", strings.NewReader("hi\nthere\n"), &out)
	require.NoError(t, err, "turn failures are reported and the loop continues")
	assert.Equal(t, []string{"hi", "there"}, c.sent)
	assert.Equal(t, 2, strings.Count(out.String(), "error: model down"))
}
