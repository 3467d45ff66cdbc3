package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tempo/internal/platform/clock"
	"tempo/internal/platform/id"
)

const subscriberBuffer = 256

// MemoryServer is a complete in-process document store: per-record
// atomic writes, server-assigned versions, and snapshot-then-live Watch
// streams. It backs tempo-devstore and the integration tests; a hosted
// deployment would sit behind the same contract.
type MemoryServer struct {
	clk   clock.Clock
	idGen id.Generator

	mu          sync.Mutex
	collections map[string]map[string]Document
	subscribers map[int64]*subscriber
	nextSub     int64
}

type subscriber struct {
	collections map[string]struct{}
	events      chan Document
	cancel      context.CancelFunc
}

func NewMemoryServer(clk clock.Clock, idGen id.Generator) *MemoryServer {
	return &MemoryServer{
		clk:         clk,
		idGen:       idGen,
		collections: map[string]map[string]Document{},
		subscribers: map[int64]*subscriber{},
	}
}

func (s *MemoryServer) Get(_ context.Context, in *GetRequest) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[in.Collection][in.Key]
	if !ok || doc.Deleted {
		return nil, status.Errorf(codes.NotFound, "%s/%s not found", in.Collection, in.Key)
	}
	return &doc, nil
}

func (s *MemoryServer) Put(_ context.Context, in *PutRequest) (*PutResponse, error) {
	doc := in.Document
	if doc.Collection == "" {
		return nil, status.Error(codes.InvalidArgument, "collection is required")
	}
	if doc.Key == "" {
		doc.Key = s.idGen.New()
	}

	s.mu.Lock()
	bucket, ok := s.collections[doc.Collection]
	if !ok {
		bucket = map[string]Document{}
		s.collections[doc.Collection] = bucket
	}
	doc.Version = bucket[doc.Key].Version + 1
	doc.UpdatedAt = s.clk.Now()
	doc.Deleted = false
	bucket[doc.Key] = doc
	s.broadcastLocked(doc)
	s.mu.Unlock()

	return &PutResponse{Document: doc}, nil
}

func (s *MemoryServer) Delete(_ context.Context, in *DeleteRequest) (*DeleteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.collections[in.Collection][in.Key]
	if !ok || existing.Deleted {
		return &DeleteResponse{Existed: false}, nil
	}
	tombstone := Document{
		Collection: in.Collection,
		Key:        in.Key,
		Version:    existing.Version + 1,
		UpdatedAt:  s.clk.Now(),
		Deleted:    true,
	}
	s.collections[in.Collection][in.Key] = tombstone
	s.broadcastLocked(tombstone)
	return &DeleteResponse{Existed: true}, nil
}

func (s *MemoryServer) List(_ context.Context, in *ListRequest) (*ListResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Document{}
	for _, doc := range s.collections[in.Collection] {
		if doc.Deleted {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return &ListResponse{Documents: out}, nil
}

func (s *MemoryServer) Watch(in *WatchRequest, stream WatchStream) error {
	wanted := map[string]struct{}{}
	for _, name := range in.Collections {
		wanted[name] = struct{}{}
	}

	streamCtx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	sub := &subscriber{
		collections: wanted,
		events:      make(chan Document, subscriberBuffer),
		cancel:      cancel,
	}

	s.mu.Lock()
	snapshot := []Document{}
	for name, bucket := range s.collections {
		if !sub.wants(name) {
			continue
		}
		for _, doc := range bucket {
			if doc.Deleted {
				continue
			}
			snapshot = append(snapshot, doc)
		}
	}
	subID := s.nextSub
	s.nextSub++
	s.subscribers[subID] = sub
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.subscribers, subID)
		s.mu.Unlock()
	}()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].Collection != snapshot[j].Collection {
			return snapshot[i].Collection < snapshot[j].Collection
		}
		return snapshot[i].Key < snapshot[j].Key
	})
	for i := range snapshot {
		if err := stream.Send(&snapshot[i]); err != nil {
			return err
		}
	}
	marker := ReadyMarker()
	if err := stream.Send(&marker); err != nil {
		return err
	}

	for {
		select {
		case <-streamCtx.Done():
			return nil
		case doc := <-sub.events:
			if err := stream.Send(&doc); err != nil {
				return err
			}
		}
	}
}

func (sub *subscriber) wants(collection string) bool {
	if len(sub.collections) == 0 {
		return true
	}
	_, ok := sub.collections[collection]
	return ok
}

// broadcastLocked fans an event out to every live subscriber. A
// subscriber that cannot keep up is cancelled; it will reconnect and
// receive a fresh snapshot instead of a gapped stream.
func (s *MemoryServer) broadcastLocked(doc Document) {
	for _, sub := range s.subscribers {
		if !sub.wants(doc.Collection) {
			continue
		}
		select {
		case sub.events <- doc:
		default:
			sub.cancel()
		}
	}
}

// WaitForVersion blocks until the given document reaches at least the
// given version, for tests that need to observe propagation.
func (s *MemoryServer) WaitForVersion(ctx context.Context, collection, key string, version int64, poll time.Duration) bool {
	for {
		s.mu.Lock()
		doc, ok := s.collections[collection][key]
		s.mu.Unlock()
		if ok && doc.Version >= version {
			return true
		}
		if !sleepCtx(ctx, poll) {
			return false
		}
	}
}
