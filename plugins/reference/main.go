package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-plugin"

	notifyrpc "tempo/internal/modules/notify/adapter/out/rpc"
)

// Reference notifier: appends every event to a log file next to the
// binary. Useful as an install smoke test and as the template for real
// desktop notifiers.
type server struct{}

func (s *server) Notify(_ context.Context, in *notifyrpc.NotifyRequest) (*notifyrpc.NotifyResponse, error) {
	dir, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate notifier binary: %w", err)
	}
	path := filepath.Join(filepath.Dir(dir), "notifications.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open notification log: %w", err)
	}
	defer file.Close()

	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	line := fmt.Sprintf("%s [%s] %s: %s\n", at.Format(time.RFC3339), in.Level, in.Title, in.Body)
	if _, err := file.WriteString(line); err != nil {
		return nil, fmt.Errorf("write notification log: %w", err)
	}
	return &notifyrpc.NotifyResponse{Delivered: true}, nil
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: notifyrpc.HandshakeConfig,
		Plugins:         notifyrpc.PluginMap(&server{}),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
