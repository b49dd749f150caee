package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMPTS
// Leitura de linhas do terminal com suporte a cancelamento.
// ══════════════════════════════════════════════════════════════════════════════

// CancelToken é a resposta que o usuário digita para cancelar um prompt.
const CancelToken = "\x1b"

// Prompter faz perguntas ao usuário.
// Ask devolve ok=false quando o usuário cancela (EOF ou ESC).
type Prompter interface {
	Ask(ctx context.Context, question string) (answer string, ok bool, err error)
	Confirm(ctx context.Context, question string) (bool, error)
}

// Terminal é o Prompter que também lê a linha de comando principal.
// ReadLine devolve io.EOF quando a entrada termina.
type Terminal interface {
	Prompter
	ReadLine(ctx context.Context, prompt string) (string, error)
}

type lineResult struct {
	text string
	err  error
}

// LinePrompter lê linhas de um io.Reader numa goroutine própria, de modo que
// uma leitura pendente possa ser abandonada quando o ctx é cancelado.
type LinePrompter struct {
	in  io.Reader
	out io.Writer

	once      sync.Once
	closeOnce sync.Once
	lines     chan lineResult
	done      chan struct{}
}

// NewLinePrompter cria um prompter sobre in/out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{
		in:    in,
		out:   out,
		lines: make(chan lineResult),
		done:  make(chan struct{}),
	}
}

func (p *LinePrompter) start() {
	go func() {
		defer close(p.lines)
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			if !p.send(lineResult{text: sc.Text()}) {
				return
			}
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		p.send(lineResult{err: err})
	}()
}

// send entrega uma linha ao leitor; devolve false depois de Close.
func (p *LinePrompter) send(r lineResult) bool {
	select {
	case p.lines <- r:
		return true
	case <-p.done:
		return false
	}
}

// Close libera a goroutine de leitura. Leituras seguintes devolvem io.EOF.
// Uma leitura bloqueada em in só termina quando in produz dados ou fecha.
func (p *LinePrompter) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// ReadLine mostra prompt e espera a próxima linha.
func (p *LinePrompter) ReadLine(ctx context.Context, prompt string) (string, error) {
	p.once.Do(p.start)
	if prompt != "" {
		fmt.Fprint(p.out, prompt)
	}

	select {
	case <-p.done:
		return "", io.EOF
	default:
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.done:
		return "", io.EOF
	case r, open := <-p.lines:
		if !open {
			return "", io.EOF
		}
		if r.err != nil {
			return "", r.err
		}
		return strings.TrimRight(r.text, "\r"), nil
	}
}

// Ask mostra a pergunta e lê a resposta.
func (p *LinePrompter) Ask(ctx context.Context, question string) (string, bool, error) {
	line, err := p.ReadLine(ctx, question+" ")
	if err == io.EOF {
		fmt.Fprintln(p.out)
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.TrimSpace(line) == CancelToken {
		return "", false, nil
	}
	return line, true, nil
}

// Confirm pergunta sim/não. Qualquer resposta fora de s/sim/y/yes é não.
func (p *LinePrompter) Confirm(ctx context.Context, question string) (bool, error) {
	answer, ok, err := p.Ask(ctx, question+" [s/N]")
	if err != nil || !ok {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "sim", "y", "yes":
		return true, nil
	}
	return false, nil
}
