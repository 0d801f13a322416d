package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"

	"github.com/ledzpl/tchat/internal/config"
	"github.com/ledzpl/tchat/internal/console"
	"github.com/ledzpl/tchat/pkg/client"
	"github.com/ledzpl/tchat/pkg/protocol"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	usage       = "Usage: tchat HOST:PORT"
	dialTimeout = 5 * time.Second
)

var errStdinClosed = errors.New("standard input closed")

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
	}
	flag.Parse()

	code, err := run(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "\ntchat: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return exitConfig, err
	}
	if len(args) > 1 {
		return exitConfig, errors.New(usage)
	}
	if len(args) == 1 {
		if err := cfg.SetAddr(args[0]); err != nil {
			return exitConfig, fmt.Errorf("%v\n%s", err, usage)
		}
	}

	codec, err := cfg.Codec()
	if err != nil {
		return exitConfig, err
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	c, err := client.Dial(dialCtx, cfg.Addr(),
		client.WithCodec(codec),
		client.WithSentinels(cfg.Sentinels()),
		client.WithLogger(log),
	)
	if err != nil {
		return exitRuntime, err
	}
	defer c.Close()

	out := console.New(os.Stdout, nil)
	lines := readLines(os.Stdin)

	username, err := askUsername(ctx, c, out, lines)
	if err != nil {
		_ = c.Disconnect()
		if errors.Is(err, errStdinClosed) || errors.Is(err, context.Canceled) {
			return exitOK, nil
		}
		return exitRuntime, err
	}

	if cfg.Colours {
		out.SetPalette(console.NewPalette(username))
	}
	if err := chatRoom(ctx, c, out, lines); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

// readLines forwards stdin lines until EOF, then closes the channel.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func askUsername(ctx context.Context, c *client.Client, out *console.Console, lines <-chan string) (string, error) {
	const question = "Enter a username : "

	for {
		if err := out.Ask(question); err != nil {
			return "", err
		}

		var name string
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return "", errStdinClosed
			}
			name = strings.TrimSpace(line)
		}

		control, err := c.SendUsername(name)
		switch control {
		case protocol.Proceed:
			return name, nil
		case protocol.UsernameExists:
			_ = out.Notice("The username entered has already been taken. Please use another username")
		case protocol.Empty:
			_ = out.Notice("Please enter a non-empty username.")
		default:
			if err != nil {
				return "", err
			}
			_ = out.Notice("An unknown error has occurred.")
		}
	}
}

func chatRoom(ctx context.Context, c *client.Client, out *console.Console, lines <-chan string) error {
	disconnect := c.Sentinels().Disconnect

	if err := out.Notice("You joined the room"); err != nil {
		return err
	}
	c.Listen(func(text string) {
		_ = out.DisplayMessage(text)
	})

	for {
		select {
		case <-ctx.Done():
			return c.Disconnect()
		case <-c.Done():
			_ = out.Notice("Connection closed by the server")
			return c.Err()
		case line, ok := <-lines:
			if !ok {
				return c.Disconnect()
			}
			if line == "" {
				_ = out.ShowPrompt()
				continue
			}
			ack, err := c.Send(line)
			if err != nil {
				return err
			}
			if ack == disconnect {
				return nil
			}
		}
	}
}
