// Package main is the navieyes command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/navieyes/internal/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run cancels the command on SIGINT, SIGTERM, or SIGHUP so an owner can stop
// speech and release the socket. A second signal falls through to the
// default handler and terminates immediately.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	return app.Execute(ctx, args, os.Stdout, os.Stderr)
}
