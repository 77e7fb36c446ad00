package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/qqoqto/travel-planner/internal/metrics"
	"github.com/qqoqto/travel-planner/internal/middleware"
	"github.com/qqoqto/travel-planner/internal/models"
	"github.com/qqoqto/travel-planner/internal/storage"
	"github.com/qqoqto/travel-planner/internal/tree"
	"github.com/qqoqto/travel-planner/pkg/treeapi"
)

// errOutsideDocument is returned for paths that do not address a document or
// something inside one.
var errOutsideDocument = errors.New("path must be under trips/{documentId}")

// streamBuffer is how many snapshots a slow subscriber may fall behind before
// the tree's delivery for it waits.
const streamBuffer = 16

// TreeService implements the Connect TreeService over an in-memory tree,
// persisting each document to storage after every mutation.
type TreeService struct {
	treeapi.UnimplementedTreeServiceHandler
	tree    *tree.Tree
	store   storage.Store
	metrics *metrics.Metrics

	mu     sync.Mutex
	docs   map[string]*sync.Mutex
	loaded map[string]bool
}

// NewTreeService creates a TreeService. m may be nil.
func NewTreeService(t *tree.Tree, store storage.Store, m *metrics.Metrics) *TreeService {
	return &TreeService{
		tree:    t,
		store:   store,
		metrics: m,
		docs:    make(map[string]*sync.Mutex),
		loaded:  make(map[string]bool),
	}
}

// documentOf returns the document ID addressed by path.
func documentOf(path string) (string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != models.RootPath || parts[1] == "" {
		return "", fmt.Errorf("%w: %q", errOutsideDocument, path)
	}
	return parts[1], nil
}

// lockDocument loads the document on first use and returns its locked mutex.
// Mutations hold the lock until they are persisted so saves land in order.
func (s *TreeService) lockDocument(ctx context.Context, documentID string) (*sync.Mutex, error) {
	s.mu.Lock()
	mu, ok := s.docs[documentID]
	if !ok {
		mu = &sync.Mutex{}
		s.docs[documentID] = mu
	}
	s.mu.Unlock()

	mu.Lock()
	s.mu.Lock()
	loaded := s.loaded[documentID]
	s.mu.Unlock()
	if loaded {
		return mu, nil
	}

	body, err := s.store.LoadDocument(ctx, documentID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		mu.Unlock()
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	default:
		if err := s.tree.Set(models.DocumentPath(documentID), body); err != nil {
			mu.Unlock()
			return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to restore document %s: %v", documentID, err))
		}
		slog.Info("Document loaded", "document", documentID, "bytes", len(body))
	}

	s.mu.Lock()
	s.loaded[documentID] = true
	s.mu.Unlock()
	s.metrics.DocumentLoaded()
	return mu, nil
}

// persist saves the current body of a document, or deletes it when empty.
func (s *TreeService) persist(ctx context.Context, documentID string) error {
	body, err := s.tree.Get(models.DocumentPath(documentID))
	if err != nil {
		return err
	}
	if body == nil {
		err = s.store.DeleteDocument(ctx, documentID)
	} else {
		err = s.store.SaveDocument(ctx, documentID, body)
	}
	if err != nil {
		return fmt.Errorf("failed to persist document %s: %w", documentID, err)
	}
	return nil
}

// mutate applies fn to the tree under the document lock and persists the result.
func (s *TreeService) mutate(ctx context.Context, op, path string, fn func() error) error {
	documentID, err := documentOf(path)
	if err != nil {
		return toConnectError(err)
	}
	mu, err := s.lockDocument(ctx, documentID)
	if err != nil {
		return toConnectError(err)
	}
	defer mu.Unlock()

	if err := fn(); err != nil {
		return toConnectError(err)
	}
	s.metrics.MutationApplied(op, path)

	if err := s.persist(ctx, documentID); err != nil {
		slog.Error("Mutation applied but not persisted", "op", op, "path", path, "error", err)
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return nil
}

// Get returns the current value at a path.
func (s *TreeService) Get(ctx context.Context, req *connect.Request[treeapi.GetRequest]) (*connect.Response[treeapi.GetResponse], error) {
	documentID, err := documentOf(req.Msg.Path)
	if err != nil {
		return nil, toConnectError(err)
	}
	mu, err := s.lockDocument(ctx, documentID)
	if err != nil {
		return nil, toConnectError(err)
	}
	mu.Unlock()

	value, err := s.tree.Get(req.Msg.Path)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&treeapi.GetResponse{Value: value}), nil
}

// Write replaces the value at a path. An empty value deletes it.
func (s *TreeService) Write(ctx context.Context, req *connect.Request[treeapi.WriteRequest]) (*connect.Response[treeapi.WriteResponse], error) {
	err := s.mutate(ctx, "write", req.Msg.Path, func() error {
		return s.tree.Set(req.Msg.Path, req.Msg.Value)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("Value written",
		"path", req.Msg.Path,
		"participant", middleware.GetParticipantID(ctx),
	)
	return connect.NewResponse(&treeapi.WriteResponse{}), nil
}

// Append stores a value under a new key of a path.
func (s *TreeService) Append(ctx context.Context, req *connect.Request[treeapi.AppendRequest]) (*connect.Response[treeapi.AppendResponse], error) {
	if len(req.Msg.Value) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%w: append requires a value", tree.ErrInvalidValue))
	}

	var key string
	err := s.mutate(ctx, "append", req.Msg.Path, func() error {
		var err error
		key, err = s.tree.Push(req.Msg.Path, req.Msg.Value)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("Value appended",
		"path", req.Msg.Path,
		"key", key,
		"participant", middleware.GetParticipantID(ctx),
	)
	return connect.NewResponse(&treeapi.AppendResponse{Key: key}), nil
}

// Delete removes the value at a path. Deleting a missing path succeeds.
func (s *TreeService) Delete(ctx context.Context, req *connect.Request[treeapi.DeleteRequest]) (*connect.Response[treeapi.DeleteResponse], error) {
	err := s.mutate(ctx, "delete", req.Msg.Path, func() error {
		return s.tree.Delete(req.Msg.Path)
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&treeapi.DeleteResponse{}), nil
}

// Subscribe streams the value at a path: once immediately, then after every
// change. The stream ends when the client goes away.
func (s *TreeService) Subscribe(ctx context.Context, req *connect.Request[treeapi.SubscribeRequest], stream *connect.ServerStream[treeapi.Snapshot]) error {
	path := req.Msg.Path
	documentID, err := documentOf(path)
	if err != nil {
		return toConnectError(err)
	}
	mu, err := s.lockDocument(ctx, documentID)
	if err != nil {
		return toConnectError(err)
	}
	mu.Unlock()

	streamID := uuid.NewString()
	updates := make(chan json.RawMessage, streamBuffer)
	done := make(chan struct{})
	defer close(done)

	cancel, err := s.tree.Subscribe(path, func(v json.RawMessage) {
		select {
		case updates <- v:
		case <-done:
		}
	})
	if err != nil {
		return toConnectError(err)
	}
	defer cancel()

	slog.Debug("Subscription started",
		"stream", streamID,
		"path", path,
		"participant", middleware.GetParticipantID(ctx),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Subscription ended", "stream", streamID, "path", path)
			return nil
		case v := <-updates:
			if err := stream.Send(&treeapi.Snapshot{Path: path, Value: v}); err != nil {
				return fmt.Errorf("failed to send snapshot: %w", err)
			}
		}
	}
}

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) error {
	var connectErr *connect.Error
	switch {
	case errors.As(err, &connectErr):
		return err
	case errors.Is(err, errOutsideDocument),
		errors.Is(err, tree.ErrInvalidPath),
		errors.Is(err, tree.ErrInvalidValue):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeUnavailable, err)
	}
}
