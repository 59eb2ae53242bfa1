package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	a := &app{ctx: ctx, logger: logger, out: os.Stdout}
	parser := newParser(a)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("custodyctl failed", zap.Error(err))
	}
}

func newParser(a *app) *flags.Parser {
	parser := flags.NewParser(&a.cfg, flags.Default)
	mustAddCommand(parser, "address", "Derive a time-locked address",
		"Derive the P2SH address and redeem script for a client key, a server key and a lock time.",
		&addressCommand{app: a})
	mustAddCommand(parser, "refund", "Build an unsigned refund transaction",
		"Build a refund transaction paying time-locked coins back once the lock time is reached.",
		&refundCommand{app: a})
	mustAddCommand(parser, "spend-all", "Build an unsigned transaction spending all given outputs",
		"Build a transaction sending the full value of the given outputs, minus the fee, to one address.",
		&spendAllCommand{app: a})
	mustAddCommand(parser, "spend", "Build an unsigned spend transaction with change",
		"Build a transaction paying an amount to one address and returning change.",
		&spendCommand{app: a})
	mustAddCommand(parser, "broadcast", "Broadcast a signed transaction",
		"Check a signed transaction for sanity and submit it to the node, optionally waiting for its lock time.",
		&broadcastCommand{app: a})
	return parser
}

func mustAddCommand(parser *flags.Parser, name, short, long string, data any) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic("add command " + name + ": " + err.Error())
	}
}
