package console

import (
	"strings"

	"github.com/gookit/color"
)

const (
	// InterfaceHeader prefixes lines generated locally by the console.
	InterfaceHeader = "<Interface>"
	serverHeader    = "<Server>"
)

// Palette picks the color of a chat line from its header, the text up to
// and including the first '>'.
type Palette interface {
	Render(line string) string
}

// NewPalette colors server lines green, console lines yellow, and the
// user's own lines red. Other lines are left as they are. The server and
// console headers keep their colors whatever the username.
func NewPalette(username string) Palette {
	p := headerPalette{"<" + username + ">": color.Red}
	p[InterfaceHeader] = color.Yellow
	p[serverHeader] = color.Green
	return p
}

// PlainPalette renders lines without color.
func PlainPalette() Palette {
	return headerPalette{}
}

type headerPalette map[string]color.Color

func (p headerPalette) Render(line string) string {
	end := strings.IndexByte(line, '>')
	if end < 0 {
		return line
	}
	if c, ok := p[line[:end+1]]; ok {
		return c.Render(line)
	}
	return line
}
