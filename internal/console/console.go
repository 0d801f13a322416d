// Package console renders chat traffic on a line-oriented terminal.
package console

import (
	"io"
	"sync"
)

const (
	seqClearLine = "\r\033[K"
	newline      = "\r\n"

	// Prompt precedes the user's input line.
	Prompt = "<You>: "
)

// Console writes incoming messages above the input prompt. It is safe for
// concurrent use by the send and receive paths.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	palette Palette
}

// New returns a Console writing to out. A nil palette disables colors.
func New(out io.Writer, palette Palette) *Console {
	if palette == nil {
		palette = PlainPalette()
	}
	return &Console{out: out, palette: palette}
}

// SetPalette swaps the palette, typically once the username is known.
func (c *Console) SetPalette(palette Palette) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if palette != nil {
		c.palette = palette
	}
}

// DisplayMessage prints msg on its own line and redraws the prompt.
func (c *Console) DisplayMessage(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeString(seqClearLine + c.palette.Render(msg) + newline + Prompt)
}

// Notice prints a line generated by the console itself.
func (c *Console) Notice(text string) error {
	return c.DisplayMessage(InterfaceHeader + ": " + text)
}

// Ask prints question and leaves the cursor after it.
func (c *Console) Ask(question string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeString(seqClearLine + question)
}

// ShowPrompt draws an empty input prompt.
func (c *Console) ShowPrompt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeString(seqClearLine + Prompt)
}

func (c *Console) writeString(s string) error {
	_, err := io.WriteString(c.out, s)
	return err
}
