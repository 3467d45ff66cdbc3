package out

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	notifyrpc "tempo/internal/modules/notify/adapter/out/rpc"
	"tempo/internal/modules/notify/domain"
	notifyout "tempo/internal/modules/notify/port/out"
)

const pluginStartTimeout = 3 * time.Second

// Manifest describes one installed notifier binary. Relative paths are
// resolved against the plugin directory.
type Manifest struct {
	Name   string `json:"name"`
	Binary string `json:"binary"`
}

// LoadManifests reads pluginDir/notifiers.json. A missing file means no
// plugins are installed.
func LoadManifests(pluginDir string) ([]Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(pluginDir, "notifiers.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return []Manifest{}, nil
		}
		return nil, fmt.Errorf("read notifier manifests: %w", err)
	}
	var manifests []Manifest
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&manifests); err != nil {
		return nil, fmt.Errorf("decode notifier manifests: %w", err)
	}
	for i := range manifests {
		if manifests[i].Binary != "" && !filepath.IsAbs(manifests[i].Binary) {
			manifests[i].Binary = filepath.Clean(filepath.Join(pluginDir, manifests[i].Binary))
		}
	}
	return manifests, nil
}

// PluginSink delivers events to an out-of-process notifier over the
// go-plugin grpc handshake. Each delivery runs the binary fresh; a
// notifier is short-lived by design.
type PluginSink struct {
	manifest Manifest
}

func NewPluginSink(manifest Manifest) notifyout.Sink {
	return &PluginSink{manifest: manifest}
}

func (s *PluginSink) Notify(ctx context.Context, event domain.Event) error {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  notifyrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          notifyrpc.PluginMap(nil),
		Cmd:              exec.Command(s.manifest.Binary),
		Managed:          true,
		StartTimeout:     pluginStartTimeout,
		Logger:           hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel}),
	})
	defer client.Kill()

	rpcClient, err := client.Client()
	if err != nil {
		return fmt.Errorf("start notifier %s: %w", s.manifest.Name, err)
	}
	raw, err := rpcClient.Dispense(notifyrpc.PluginMapKey)
	if err != nil {
		return fmt.Errorf("dispense notifier %s: %w", s.manifest.Name, err)
	}
	typed, ok := raw.(notifyrpc.NotifierClient)
	if !ok {
		return fmt.Errorf("notifier rpc client type mismatch")
	}

	if _, err := typed.Notify(ctx, &notifyrpc.NotifyRequest{
		Level: string(event.Level),
		Title: event.Title,
		Body:  event.Body,
		At:    event.At,
	}); err != nil {
		return fmt.Errorf("notify via %s: %w", s.manifest.Name, err)
	}
	return nil
}
