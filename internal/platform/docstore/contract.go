package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	serviceName   = "tempo.docstore.v1.DocStore"
	jsonCodecName = "json"
	methodGet     = "/" + serviceName + "/Get"
	methodPut     = "/" + serviceName + "/Put"
	methodDelete  = "/" + serviceName + "/Delete"
	methodList    = "/" + serviceName + "/List"
	methodWatch   = "/" + serviceName + "/Watch"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Document is the unit of storage: one mutable record in a named
// collection. Version is assigned by the store and increases on every
// accepted write; watchers receive Deleted=true tombstones on removal.
type Document struct {
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Version    int64           `json:"version"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Deleted    bool            `json:"deleted,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

type GetRequest struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
}

type PutRequest struct {
	Document Document `json:"document"`
}

type PutResponse struct {
	Document Document `json:"document"`
}

type DeleteRequest struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
}

type DeleteResponse struct {
	Existed bool `json:"existed"`
}

type ListRequest struct {
	Collection string `json:"collection"`
}

type ListResponse struct {
	Documents []Document `json:"documents"`
}

type WatchRequest struct {
	Collections []string `json:"collections"`
}

// ReadyMarker is emitted once per Watch attach, after the initial
// snapshot has been streamed. It lets a subscriber of an empty store
// learn the stream is live.
func ReadyMarker() Document {
	return Document{}
}

func (d Document) IsReadyMarker() bool {
	return d.Collection == "" && d.Key == ""
}

type DocStoreServer interface {
	Get(ctx context.Context, in *GetRequest) (*Document, error)
	Put(ctx context.Context, in *PutRequest) (*PutResponse, error)
	Delete(ctx context.Context, in *DeleteRequest) (*DeleteResponse, error)
	List(ctx context.Context, in *ListRequest) (*ListResponse, error)
	Watch(in *WatchRequest, stream WatchStream) error
}

// WatchStream is the server-side send half of a Watch call.
type WatchStream interface {
	Send(doc *Document) error
	Context() context.Context
}

type DocStoreClient interface {
	Get(ctx context.Context, in *GetRequest) (*Document, error)
	Put(ctx context.Context, in *PutRequest) (*PutResponse, error)
	Delete(ctx context.Context, in *DeleteRequest) (*DeleteResponse, error)
	List(ctx context.Context, in *ListRequest) (*ListResponse, error)
	Watch(ctx context.Context, in *WatchRequest) (WatchReceiver, error)
}

// WatchReceiver is the client-side receive half of a Watch call.
type WatchReceiver interface {
	Recv() (*Document, error)
}

type docStoreClient struct {
	conn *grpc.ClientConn
}

func NewDocStoreClient(conn *grpc.ClientConn) DocStoreClient {
	return &docStoreClient{conn: conn}
}

func (c *docStoreClient) Get(ctx context.Context, in *GetRequest) (*Document, error) {
	out := &Document{}
	if err := c.conn.Invoke(ctx, methodGet, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docStoreClient) Put(ctx context.Context, in *PutRequest) (*PutResponse, error) {
	out := &PutResponse{}
	if err := c.conn.Invoke(ctx, methodPut, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docStoreClient) Delete(ctx context.Context, in *DeleteRequest) (*DeleteResponse, error) {
	out := &DeleteResponse{}
	if err := c.conn.Invoke(ctx, methodDelete, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *docStoreClient) List(ctx context.Context, in *ListRequest) (*ListResponse, error) {
	out := &ListResponse{}
	if err := c.conn.Invoke(ctx, methodList, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

var watchStreamDesc = grpc.StreamDesc{
	StreamName:    "Watch",
	ServerStreams: true,
}

func (c *docStoreClient) Watch(ctx context.Context, in *WatchRequest) (WatchReceiver, error) {
	stream, err := c.conn.NewStream(ctx, &watchStreamDesc, methodWatch, grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &watchReceiver{stream: stream}, nil
}

type watchReceiver struct {
	stream grpc.ClientStream
}

func (r *watchReceiver) Recv() (*Document, error) {
	doc := &Document{}
	if err := r.stream.RecvMsg(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type watchServerStream struct {
	grpc.ServerStream
}

func (s watchServerStream) Send(doc *Document) error {
	return s.ServerStream.SendMsg(doc)
}

func RegisterDocStoreServer(server grpc.ServiceRegistrar, impl DocStoreServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*DocStoreServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Get",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &GetRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Get(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGet}
					handler := func(ctx context.Context, req any) (any, error) {
						getReq, ok := req.(*GetRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Get(ctx, getReq)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "Put",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &PutRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Put(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPut}
					handler := func(ctx context.Context, req any) (any, error) {
						putReq, ok := req.(*PutRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Put(ctx, putReq)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "Delete",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &DeleteRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Delete(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDelete}
					handler := func(ctx context.Context, req any) (any, error) {
						delReq, ok := req.(*DeleteRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Delete(ctx, delReq)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "List",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &ListRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.List(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodList}
					handler := func(ctx context.Context, req any) (any, error) {
						listReq, ok := req.(*ListRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.List(ctx, listReq)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Watch",
				ServerStreams: true,
				Handler: func(srv any, stream grpc.ServerStream) error {
					in := &WatchRequest{}
					if err := stream.RecvMsg(in); err != nil {
						return err
					}
					return impl.Watch(in, watchServerStream{ServerStream: stream})
				},
			},
		},
		Metadata: "schemas/docstore-rpc-v1.proto",
	}, impl)
}
