package meshchat

import (
	"fmt"
	"io"
	"sync"
)

const prompt = ">> "

type Printer interface {
	Printf(format string, args ...any)
	Println(args ...any)
	Prompt()
}

// StdPrinter serializes output from the dispatcher and the input loop.
type StdPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStdPrinter(w io.Writer) *StdPrinter { return &StdPrinter{w: w} }

func (p *StdPrinter) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *StdPrinter) Println(args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, args...)
}

func (p *StdPrinter) Prompt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, prompt)
}
