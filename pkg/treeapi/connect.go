package treeapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// TreeServiceHandler is implemented by the tree server.
type TreeServiceHandler interface {
	Get(context.Context, *connect.Request[GetRequest]) (*connect.Response[GetResponse], error)
	Write(context.Context, *connect.Request[WriteRequest]) (*connect.Response[WriteResponse], error)
	Append(context.Context, *connect.Request[AppendRequest]) (*connect.Response[AppendResponse], error)
	Delete(context.Context, *connect.Request[DeleteRequest]) (*connect.Response[DeleteResponse], error)
	Subscribe(context.Context, *connect.Request[SubscribeRequest], *connect.ServerStream[Snapshot]) error
}

// NewTreeServiceHandler builds an HTTP handler for every TreeService procedure.
// It returns the path prefix to mount the handler on.
func NewTreeServiceHandler(svc TreeServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	get := connect.NewUnaryHandler(TreeServiceGetProcedure, svc.Get, opts...)
	write := connect.NewUnaryHandler(TreeServiceWriteProcedure, svc.Write, opts...)
	appendHandler := connect.NewUnaryHandler(TreeServiceAppendProcedure, svc.Append, opts...)
	del := connect.NewUnaryHandler(TreeServiceDeleteProcedure, svc.Delete, opts...)
	subscribe := connect.NewServerStreamHandler(TreeServiceSubscribeProcedure, svc.Subscribe, opts...)

	return "/" + TreeServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TreeServiceGetProcedure:
			get.ServeHTTP(w, r)
		case TreeServiceWriteProcedure:
			write.ServeHTTP(w, r)
		case TreeServiceAppendProcedure:
			appendHandler.ServeHTTP(w, r)
		case TreeServiceDeleteProcedure:
			del.ServeHTTP(w, r)
		case TreeServiceSubscribeProcedure:
			subscribe.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedTreeServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedTreeServiceHandler struct{}

var errUnimplemented = errors.New("procedure is not implemented")

func (UnimplementedTreeServiceHandler) Get(context.Context, *connect.Request[GetRequest]) (*connect.Response[GetResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errUnimplemented)
}

func (UnimplementedTreeServiceHandler) Write(context.Context, *connect.Request[WriteRequest]) (*connect.Response[WriteResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errUnimplemented)
}

func (UnimplementedTreeServiceHandler) Append(context.Context, *connect.Request[AppendRequest]) (*connect.Response[AppendResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errUnimplemented)
}

func (UnimplementedTreeServiceHandler) Delete(context.Context, *connect.Request[DeleteRequest]) (*connect.Response[DeleteResponse], error) {
	return nil, connect.NewError(connect.CodeUnimplemented, errUnimplemented)
}

func (UnimplementedTreeServiceHandler) Subscribe(context.Context, *connect.Request[SubscribeRequest], *connect.ServerStream[Snapshot]) error {
	return connect.NewError(connect.CodeUnimplemented, errUnimplemented)
}

// TreeServiceClient is a client for the TreeService.
type TreeServiceClient interface {
	Get(context.Context, *connect.Request[GetRequest]) (*connect.Response[GetResponse], error)
	Write(context.Context, *connect.Request[WriteRequest]) (*connect.Response[WriteResponse], error)
	Append(context.Context, *connect.Request[AppendRequest]) (*connect.Response[AppendResponse], error)
	Delete(context.Context, *connect.Request[DeleteRequest]) (*connect.Response[DeleteResponse], error)
	Subscribe(context.Context, *connect.Request[SubscribeRequest]) (*connect.ServerStreamForClient[Snapshot], error)
}

// NewTreeServiceClient constructs a client for the TreeService at baseURL
// (e.g. "http://localhost:8080").
func NewTreeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) TreeServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &treeServiceClient{
		get:       connect.NewClient[GetRequest, GetResponse](httpClient, baseURL+TreeServiceGetProcedure, opts...),
		write:     connect.NewClient[WriteRequest, WriteResponse](httpClient, baseURL+TreeServiceWriteProcedure, opts...),
		append:    connect.NewClient[AppendRequest, AppendResponse](httpClient, baseURL+TreeServiceAppendProcedure, opts...),
		delete:    connect.NewClient[DeleteRequest, DeleteResponse](httpClient, baseURL+TreeServiceDeleteProcedure, opts...),
		subscribe: connect.NewClient[SubscribeRequest, Snapshot](httpClient, baseURL+TreeServiceSubscribeProcedure, opts...),
	}
}

type treeServiceClient struct {
	get       *connect.Client[GetRequest, GetResponse]
	write     *connect.Client[WriteRequest, WriteResponse]
	append    *connect.Client[AppendRequest, AppendResponse]
	delete    *connect.Client[DeleteRequest, DeleteResponse]
	subscribe *connect.Client[SubscribeRequest, Snapshot]
}

func (c *treeServiceClient) Get(ctx context.Context, req *connect.Request[GetRequest]) (*connect.Response[GetResponse], error) {
	return c.get.CallUnary(ctx, req)
}

func (c *treeServiceClient) Write(ctx context.Context, req *connect.Request[WriteRequest]) (*connect.Response[WriteResponse], error) {
	return c.write.CallUnary(ctx, req)
}

func (c *treeServiceClient) Append(ctx context.Context, req *connect.Request[AppendRequest]) (*connect.Response[AppendResponse], error) {
	return c.append.CallUnary(ctx, req)
}

func (c *treeServiceClient) Delete(ctx context.Context, req *connect.Request[DeleteRequest]) (*connect.Response[DeleteResponse], error) {
	return c.delete.CallUnary(ctx, req)
}

func (c *treeServiceClient) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest]) (*connect.ServerStreamForClient[Snapshot], error) {
	return c.subscribe.CallServerStream(ctx, req)
}
