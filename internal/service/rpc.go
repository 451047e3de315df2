package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	pkggrpc "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
)

// RegisterRPC exposes svc on srv. Each call runs under callTimeout when it
// is positive.
func RegisterRPC(srv *pkggrpc.Server, svc *Service, callTimeout time.Duration) {
	srv.SetErrorCoder(ErrorCode)
	wrap := func(h pkggrpc.HandlerFunc) pkggrpc.HandlerFunc {
		return func(ctx context.Context, req json.RawMessage) (any, error) {
			if callTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, callTimeout)
				defer cancel()
			}
			ctx = logger.WithRequestID(ctx, uuid.NewString())
			return h(ctx, req)
		}
	}

	srv.Register(proto.MethodIndex, wrap(func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.IndexRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding index request: %w", apperrors.ErrInvalidInput)
		}
		return IndexRequest(ctx, svc, req)
	}))

	srv.Register(proto.MethodSearch, wrap(func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding search request: %w", apperrors.ErrInvalidInput)
		}
		start := time.Now()
		res, err := svc.Search(ctx, req.Query, int(req.Limit))
		if err != nil {
			return nil, err
		}
		return toSearchResponse(res, time.Since(start)), nil
	}))

	srv.Register(proto.MethodGeneration, wrap(func(context.Context, json.RawMessage) (any, error) {
		info, ok := svc.Generation()
		if !ok {
			return proto.GenerationResponse{}, nil
		}
		return toGenerationResponse(info), nil
	}))

	srv.Register(proto.MethodHealth, func(context.Context, json.RawMessage) (any, error) {
		resp := proto.HealthCheckResponse{Status: "SERVING"}
		if info, ok := svc.Generation(); ok {
			resp.Generation = info.ID
		}
		return resp, nil
	})
}

// IndexRequest converts a wire batch and indexes it. The ingest consumer
// shares it with the RPC handler.
func IndexRequest(ctx context.Context, svc *Service, req proto.IndexRequest) (proto.IndexResponse, error) {
	docs := make([]document.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = document.New(d.ID, d.Fields)
	}
	start := time.Now()
	gen, err := svc.Index(ctx, docs)
	if err != nil {
		return proto.IndexResponse{}, err
	}
	resp := proto.IndexResponse{Generation: gen, DurationMs: time.Since(start).Milliseconds()}
	if info, ok := svc.Generation(); ok && info.ID == gen {
		resp.Documents = info.Documents
		resp.Terms = info.Terms
	}
	return resp, nil
}

func toSearchResponse(res *executor.SearchResult, latency time.Duration) proto.SearchResponse {
	out := proto.SearchResponse{
		Query:      res.Query,
		Generation: res.Generation,
		TotalHits:  int32(res.TotalHits),
		Results:    make([]proto.SearchResult, len(res.Results)),
		LatencyMs:  latency.Milliseconds(),
		Cached:     res.Cached,
	}
	for i, r := range res.Results {
		out.Results[i] = proto.SearchResult{DocID: r.DocID, Score: r.Score, MatchedTerms: r.MatchedTerms}
	}
	return out
}

func toGenerationResponse(info GenerationInfo) proto.GenerationResponse {
	return proto.GenerationResponse{
		ID:            info.ID,
		State:         info.State,
		Documents:     info.Documents,
		Terms:         info.Terms,
		AvgDocLength:  info.AvgDocLength,
		BuiltAt:       info.BuiltAt.UnixMilli(),
		ActiveQueries: info.ActiveQueries,
	}
}

// ErrorCode maps service errors to the codes clients branch on. Build
// failures report their cause where it is a client mistake.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrEmptyCorpus):
		return proto.CodeEmptyCorpus
	case errors.Is(err, apperrors.ErrInvalidDocument):
		return proto.CodeInvalidDocument
	case errors.Is(err, apperrors.ErrIndexingFailed):
		return proto.CodeIndexingFailed
	case errors.Is(err, apperrors.ErrMalformedQuery):
		return proto.CodeMalformedQuery
	case errors.Is(err, apperrors.ErrInvalidLimit):
		return proto.CodeInvalidLimit
	case errors.Is(err, apperrors.ErrIndexGenerationMismatch):
		return proto.CodeGenerationMismatch
	case errors.Is(err, apperrors.ErrInvalidInput):
		return proto.CodeInvalidRequest
	default:
		return ""
	}
}
