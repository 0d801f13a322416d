package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"

	"github.com/ledzpl/tchat/internal/chat"
	"github.com/ledzpl/tchat/internal/config"
	"github.com/ledzpl/tchat/pkg/tcpserver"
)

const usage = "Usage: tchatd HOST:PORT"

var errUsage = errors.New(usage)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
	}
	flag.Parse()

	if err := run(flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "tchatd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}

	if len(args) > 1 {
		return errUsage
	}
	if len(args) == 1 {
		if err := cfg.SetAddr(args[0]); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)

	codec, err := cfg.Codec()
	if err != nil {
		return err
	}

	hub := chat.NewHub(log,
		chat.WithCodec(codec),
		chat.WithSentinels(cfg.Sentinels()),
		chat.WithWriteTimeout(cfg.WriteTimeout),
	)
	server := tcpserver.New(cfg.Addr(), log, tcpserver.WithAcceptTimeout(cfg.AcceptTimeout))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = server.ListenAndServe(ctx, hub.HandleConn)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("server closed", "addr", cfg.Addr())
	return nil
}
