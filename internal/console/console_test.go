package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"
)

func TestConsoleDisplayMessageRedrawsPrompt(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, nil)

	require.NoError(t, c.DisplayMessage("<bob>: hi"))
	require.Equal(t, "\r\033[K<bob>: hi\r\n<You>: ", out.String())
}

func TestConsoleNoticeUsesInterfaceHeader(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, nil)

	require.NoError(t, c.Notice("You joined the room"))
	require.Contains(t, out.String(), "<Interface>: You joined the room\r\n")
}

func TestConsoleAskAndPrompt(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, nil)

	require.NoError(t, c.Ask("Enter a username : "))
	require.NoError(t, c.ShowPrompt())
	require.Equal(t, "\r\033[KEnter a username : \r\033[K<You>: ", out.String())
}

func TestConsoleConcurrentWritesKeepLinesWhole(t *testing.T) {
	var out safeBuffer
	c := New(&out, nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.DisplayMessage("<Server>: ping")
		}()
	}
	wg.Wait()

	require.Equal(t, 16, strings.Count(out.String(), "\r\033[K<Server>: ping\r\n<You>: "))
}

func TestPaletteColorsKnownHeaders(t *testing.T) {
	p := NewPalette("alice")

	for _, line := range []string{"<Server>: bob connected - 2 users online", "<alice>: hi", "<Interface>: You joined the room"} {
		require.Contains(t, p.Render(line), line)
	}
	require.Equal(t, "<bob>: hi", p.Render("<bob>: hi"))
	require.Equal(t, "no header", p.Render("no header"))
	require.Equal(t, "<alice>: hi", PlainPalette().Render("<alice>: hi"))
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPaletteKeepsReservedHeaderColors(t *testing.T) {
	for _, name := range []string{"Server", "Interface"} {
		p := NewPalette(name).(headerPalette)

		require.Equal(t, color.Green, p[serverHeader], name)
		require.Equal(t, color.Yellow, p[InterfaceHeader], name)
	}
}
