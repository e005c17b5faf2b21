// Package handler serves the presence API behind API Gateway.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gh-presence/internal/domain"
	"gh-presence/internal/usecase"
)

const (
	routePresence     = "/presence"
	correlationHeader = "X-Correlation-Id"
)

type PresenceUseCase interface {
	Heartbeat(ctx context.Context, in usecase.HeartbeatInput) error
	Peers(ctx context.Context, in usecase.PeersInput) (usecase.PeersOutput, error)
	Clear(ctx context.Context, in usecase.ClearInput) error
}

type Handler struct {
	svc    PresenceUseCase
	logger *zap.Logger
}

type heartbeatRequest struct {
	SessionID string `json:"sessionId"`
	User      string `json:"user"`
	Avatar    string `json:"avatar"`
	Path      string `json:"path"`
	IsTyping  bool   `json:"isTyping"`
}

type peersResponse struct {
	Reading []peer `json:"reading"`
	Writing []peer `json:"writing"`
}

// peer is the public view of another session. Session IDs stay private
// since they key PUT and DELETE.
type peer struct {
	User      string    `json:"user"`
	Avatar    string    `json:"avatar,omitempty"`
	IsTyping  bool      `json:"isTyping"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(svc PresenceUseCase, logger *zap.Logger) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: presence use case must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	cid := correlationID(req.Headers)
	log := h.logger.With(
		zap.String("correlation_id", cid),
		zap.String("method", req.HTTPMethod),
		zap.String("path", req.Path),
	)

	if strings.TrimSuffix(req.Path, "/") != routePresence {
		return jsonResponse(http.StatusNotFound, cid, errorResponse{Error: "NOT_FOUND"}), nil
	}

	var err error
	switch req.HTTPMethod {
	case http.MethodPut:
		err = h.heartbeat(ctx, req)
		if err == nil {
			return emptyResponse(http.StatusNoContent, cid), nil
		}
	case http.MethodGet:
		var out usecase.PeersOutput
		out, err = h.svc.Peers(ctx, usecase.PeersInput{
			User: req.QueryStringParameters["user"],
			Path: req.QueryStringParameters["path"],
		})
		if err == nil {
			return jsonResponse(http.StatusOK, cid, peersResponse{
				Reading: toPeers(out.Reading),
				Writing: toPeers(out.Writing),
			}), nil
		}
	case http.MethodDelete:
		err = h.svc.Clear(ctx, usecase.ClearInput{
			User:      req.QueryStringParameters["user"],
			SessionID: req.QueryStringParameters["sessionId"],
		})
		if err == nil {
			return emptyResponse(http.StatusNoContent, cid), nil
		}
	default:
		resp := jsonResponse(http.StatusMethodNotAllowed, cid, errorResponse{Error: "METHOD_NOT_ALLOWED"})
		resp.Headers["Allow"] = "GET, PUT, DELETE"
		return resp, nil
	}

	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error("presence request failed", zap.String("code", code), zap.Error(err))
	} else {
		log.Info("presence request rejected", zap.String("code", code), zap.Error(err))
	}
	return jsonResponse(status, cid, errorResponse{Error: code}), nil
}

func (h *Handler) heartbeat(ctx context.Context, req events.APIGatewayProxyRequest) error {
	var body heartbeatRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}
	}
	return h.svc.Heartbeat(ctx, usecase.HeartbeatInput{
		SessionID: body.SessionID,
		User:      body.User,
		Avatar:    body.Avatar,
		Path:      body.Path,
		IsTyping:  body.IsTyping,
	})
}

func mapError(err error) (int, string) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
	switch ue.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(ue.Code)
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, string(ue.Code)
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(ue.Code)
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func jsonResponse(status int, cid string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: cid,
		},
		Body: string(body),
	}
}

func emptyResponse(status int, cid string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{correlationHeader: cid},
	}
}

func toPeers(recs []domain.PresenceRecord) []peer {
	out := make([]peer, 0, len(recs))
	for _, r := range recs {
		out = append(out, peer{
			User:      r.User,
			Avatar:    r.Avatar,
			IsTyping:  r.IsTyping,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out
}
