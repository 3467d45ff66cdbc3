package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"tempo/internal/platform/clock"
	"tempo/internal/platform/docstore"
	"tempo/internal/platform/id"
)

// tempo-devstore is an in-memory document store for development and
// multi-device testing. State is lost on exit.
func main() {
	addr := "127.0.0.1:7420"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log := logrus.New()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	server := grpc.NewServer()
	docstore.RegisterDocStoreServer(server, docstore.NewMemoryServer(clock.SystemClock{}, id.RandomHex{}))

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		server.GracefulStop()
	}()

	log.WithField("addr", addr).Info("devstore listening")
	if err := server.Serve(lis); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
