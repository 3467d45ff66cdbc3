package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	apperrors "tempo/internal/platform/errors"
)

const (
	initialWatchBackoff = 500 * time.Millisecond
	maxWatchBackoff     = 15 * time.Second
)

// Options configure a Client. CallTimeout bounds every unary call so a
// dead remote surfaces as a write failure instead of a hang.
type Options struct {
	Addr        string
	CallTimeout time.Duration
	Logger      *logrus.Logger
}

// Handlers receive watch traffic. OnChange is invoked for every document
// event including delete tombstones; OnStatus fires on every
// online/offline transition of the watch stream.
type Handlers struct {
	OnChange func(doc Document)
	OnStatus func(online bool)
}

type Client struct {
	conn        *grpc.ClientConn
	stub        DocStoreClient
	callTimeout time.Duration
	log         *logrus.Entry
}

func Dial(opts Options) (*Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("docstore address is required")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	conn, err := grpc.NewClient(opts.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial docstore: %w", err)
	}
	return &Client{
		conn:        conn,
		stub:        NewDocStoreClient(conn),
		callTimeout: opts.CallTimeout,
		log:         logger.WithField("component", "docstore"),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Client) Get(ctx context.Context, collection, key string) (Document, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	doc, err := c.stub.Get(callCtx, &GetRequest{Collection: collection, Key: key})
	if err != nil {
		return Document{}, mapErr(err)
	}
	return *doc, nil
}

func (c *Client) Put(ctx context.Context, doc Document) (Document, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.stub.Put(callCtx, &PutRequest{Document: doc})
	if err != nil {
		return Document{}, mapErr(err)
	}
	return resp.Document, nil
}

func (c *Client) Delete(ctx context.Context, collection, key string) (bool, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.stub.Delete(callCtx, &DeleteRequest{Collection: collection, Key: key})
	if err != nil {
		return false, mapErr(err)
	}
	return resp.Existed, nil
}

func (c *Client) List(ctx context.Context, collection string) ([]Document, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.stub.List(callCtx, &ListRequest{Collection: collection})
	if err != nil {
		return nil, mapErr(err)
	}
	return resp.Documents, nil
}

// WatchLoop subscribes to the given collections and keeps the stream
// alive until ctx is cancelled, reconnecting with exponential backoff.
// Each successful (re)attach replays the store's current snapshot first,
// so a reconnecting device converges without a separate read.
func (c *Client) WatchLoop(ctx context.Context, collections []string, handlers Handlers) {
	backoff := initialWatchBackoff
	online := false
	setOnline := func(next bool) {
		if online == next {
			return
		}
		online = next
		if handlers.OnStatus != nil {
			handlers.OnStatus(next)
		}
	}

	for {
		if ctx.Err() != nil {
			setOnline(false)
			return
		}
		recv, err := c.stub.Watch(ctx, &WatchRequest{Collections: collections})
		if err != nil {
			setOnline(false)
			c.log.WithError(err).Debug("watch attach failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		for {
			doc, err := recv.Recv()
			if err != nil {
				if ctx.Err() != nil {
					setOnline(false)
					return
				}
				setOnline(false)
				c.log.WithError(err).Warn("watch stream lost")
				break
			}
			setOnline(true)
			backoff = initialWatchBackoff
			if doc == nil || doc.IsReadyMarker() {
				continue
			}
			if handlers.OnChange != nil {
				handlers.OnChange(*doc)
			}
		}

		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxWatchBackoff {
		next = maxWatchBackoff
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return apperrors.ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", apperrors.ErrOffline, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperrors.ErrOffline, err)
	}
	return err
}
