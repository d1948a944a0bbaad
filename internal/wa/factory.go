package wa

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gbarros/wamux/internal/protocol"
	"github.com/gbarros/wamux/internal/session"
)

// Factory builds whatsmeow-backed clients, one credential database per
// session under the base directory.
type Factory struct {
	baseDir    string
	deviceName string
	logger     *zap.Logger
}

// NewFactory creates a client factory rooted at baseDir. deviceName is
// shown on the phone's linked devices list.
func NewFactory(baseDir, deviceName string, logger *zap.Logger) *Factory {
	return &Factory{
		baseDir:    baseDir,
		deviceName: deviceName,
		logger:     logger,
	}
}

// NewClient opens (or creates) the session's credential store and wraps a
// fresh whatsmeow client around its first device.
func (f *Factory) NewClient(ctx context.Context, sessionID string) (protocol.Client, error) {
	wastore.SetOSInfo(f.deviceName, [3]uint32{0, 1, 0})

	if err := session.EnsureDir(f.baseDir, sessionID); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	dbPath := session.CredsDBPath(f.baseDir, sessionID)
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	wm := whatsmeow.NewClient(deviceStore, nil)
	// Reconnection policy lives with the session supervisor; whatsmeow's
	// own auto-reconnect would race it and re-open superseded sockets.
	wm.EnableAutoReconnect = false

	c := &Client{
		wm:        wm,
		container: container,
		logger:    f.logger.Named("wa").With(zap.String("session", sessionID)),
		sessionID: sessionID,
		events:    make(chan protocol.Event, eventBufferSize),
		wake:      make(chan struct{}, 1),
	}
	c.wm.AddEventHandler(c.handleEvent)
	go c.pump()
	return c, nil
}
