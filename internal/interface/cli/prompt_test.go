package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinePrompter_AskAndReadLine(t *testing.T) {
	out := &bytes.Buffer{}
	p := NewLinePrompter(strings.NewReader("list\r\n8,5\n\x1b\nsim\n"), out)
	ctx := context.Background()

	line, err := p.ReadLine(ctx, "notas> ")
	require.NoError(t, err)
	assert.Equal(t, "list", line)

	answer, ok, err := p.Ask(ctx, "Nota:")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "8,5", answer)

	_, ok, err = p.Ask(ctx, "Disciplina:")
	require.NoError(t, err)
	assert.False(t, ok, "ESC cancels")

	confirmed, err := p.Confirm(ctx, "Excluir?")
	require.NoError(t, err)
	assert.True(t, confirmed)

	_, ok, err = p.Ask(ctx, "Mais?")
	require.NoError(t, err)
	assert.False(t, ok, "EOF cancels")

	_, err = p.ReadLine(ctx, "")
	assert.ErrorIs(t, err, io.EOF)

	assert.Contains(t, out.String(), "notas> ")
	assert.Contains(t, out.String(), "Excluir? [s/N] ")
}

func TestLinePrompter_ConfirmDefaultsToNo(t *testing.T) {
	p := NewLinePrompter(strings.NewReader("\nqualquer\n"), io.Discard)

	confirmed, err := p.Confirm(context.Background(), "Excluir?")
	require.NoError(t, err)
	assert.False(t, confirmed)

	confirmed, err = p.Confirm(context.Background(), "Excluir?")
	require.NoError(t, err)
	assert.False(t, confirmed)
}

func TestLinePrompter_ContextCancelsPendingRead(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := NewLinePrompter(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := p.Ask(ctx, "Nota:")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRouter_DispatchAndAliases(t *testing.T) {
	r := NewRouter(RouterConfig{Debug: true})
	var got CommandContext
	r.RegisterCommand("grade", func(_ context.Context, c CommandContext) error {
		got = c
		return nil
	}, "nota")

	unknown := ""
	r.SetDefaultCommandHandler(func(_ context.Context, c CommandContext) error {
		unknown = c.Command
		return nil
	})

	require.NoError(t, r.Handle(context.Background(), "  NOTA 1  Língua Portuguesa "))
	assert.Equal(t, "nota", got.Command)
	assert.Equal(t, []string{"1", "Língua", "Portuguesa"}, got.Args)
	assert.Equal(t, "1  Língua Portuguesa", got.Raw)

	require.NoError(t, r.Handle(context.Background(), "voar"))
	assert.Equal(t, "voar", unknown)

	require.NoError(t, r.Handle(context.Background(), "   "))
	assert.Equal(t, []string{"grade"}, r.Commands())
}

// endlessLines nunca chega ao fim: sem Close a goroutine de leitura não termina.
type endlessLines struct{}

func (endlessLines) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = 'x'
		if i%8 == 7 {
			b[i] = '\n'
		}
	}
	return len(b), nil
}

func TestLinePrompter_CloseStopsReader(t *testing.T) {
	p := NewLinePrompter(endlessLines{}, io.Discard)
	ctx := context.Background()

	line, err := p.ReadLine(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "xxxxxxx", line)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.ReadLine(context.Background(), "")
	assert.ErrorIs(t, err, io.EOF)

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for range p.lines {
		}
	}()

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine still blocked after Close")
	}
}
