// Package handler adapts chat channels to the chat service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"catalog-assistant/internal/domain"
	"catalog-assistant/internal/usecase"
)

// CorrelationHeader carries the request id on every response.
const CorrelationHeader = "X-Correlation-Id"

const (
	welcomeText      = "¡Hola! Soy el asistente de la tienda. Preguntame por precios, stock o cotizaciones y te respondo al toque."
	resetText        = "Listo, empecemos de nuevo. ¿Qué estás buscando?"
	apologyText      = "Disculpá, tuve un problema para responderte. Probá de nuevo en unos minutos."
	noCategoriesText = "Todavía no hay categorías cargadas."
	helpText         = "Escribime el repuesto que buscás (por ejemplo \"batería iPhone 11\") y te paso precio y stock.\n" +
		"Comandos: /categories lista las categorías, /reset borra la conversación."
)

type ChatUseCase interface {
	HandleTurn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	Reset(chatID string)
	Categories(ctx context.Context) ([]string, error)
}

// Request is the channel-neutral inbound message.
type Request struct {
	ChatID  string `json:"chatId"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type productView struct {
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Promo    bool     `json:"promo"`
	Currency string   `json:"currency"`
	Quantity int      `json:"quantity"`
	InStock  bool     `json:"inStock"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Category string   `json:"category,omitempty"`
	Location string   `json:"location,omitempty"`
}

type chatResponse struct {
	ChatID   string        `json:"chatId"`
	Text     string        `json:"text"`
	Products []productView `json:"products"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type Handler struct {
	chat   ChatUseCase
	logger *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(chat ChatUseCase, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	h := &Handler{chat: chat, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, CorrelationHeader)
	if correlationID == "" {
		correlationID = newUUID()
	}

	var req Request
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		h.logger.Warn("invalid request body", "correlation_id", correlationID, "err", err)
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{
			Error:   string(usecase.ErrorInvalidInput),
			Message: "body must be a JSON object with chatId and text",
		}), nil
	}

	status, body := h.Process(ctx, correlationID, req)
	return jsonResponse(status, correlationID, body), nil
}

// Process runs one inbound message and returns the HTTP status and body to
// send back. A nil body means there is nothing to reply.
func (h *Handler) Process(ctx context.Context, correlationID string, req Request) (int, any) {
	channel, ok := resolveChannel(req)
	if !ok {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "unknown channel"}
	}
	if strings.TrimSpace(req.ChatID) == "" {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "chatId is required"}
	}
	chatID := domain.ChatKey(channel, req.ChatID)
	logger := h.logger.With("correlation_id", correlationID, "chat_id", chatID)

	text := strings.TrimSpace(req.Text)
	if cmd, isCommand := parseCommand(text); isCommand {
		return h.command(ctx, logger, chatID, cmd)
	}

	out, err := h.chat.HandleTurn(ctx, usecase.TurnInput{ChatID: chatID, Channel: channel, Message: text})
	if err != nil {
		code := usecase.CodeOf(err)
		if code == usecase.ErrorInvalidInput {
			return http.StatusBadRequest, errorResponse{Error: string(code), Message: reasonOf(err)}
		}
		logger.Error("chat turn failed", "code", code, "err", err)
		return http.StatusOK, reply(chatID, apologyText, nil)
	}

	logger.Info("chat turn answered", "products", len(out.Products))
	return http.StatusOK, reply(chatID, out.Text, out.Products)
}

func (h *Handler) command(ctx context.Context, logger *slog.Logger, chatID, cmd string) (int, any) {
	switch cmd {
	case "/start":
		h.chat.Reset(chatID)
		return http.StatusOK, reply(chatID, welcomeText, nil)
	case "/reset":
		h.chat.Reset(chatID)
		return http.StatusOK, reply(chatID, resetText, nil)
	case "/help":
		return http.StatusOK, reply(chatID, helpText, nil)
	case "/categories", "/categorias":
		cats, err := h.chat.Categories(ctx)
		if err != nil {
			logger.Error("list categories failed", "err", err)
			return http.StatusOK, reply(chatID, apologyText, nil)
		}
		if len(cats) == 0 {
			return http.StatusOK, reply(chatID, noCategoriesText, nil)
		}
		return http.StatusOK, reply(chatID, "Categorías disponibles:\n- "+strings.Join(cats, "\n- "), nil)
	default:
		logger.Debug("ignoring unknown command", "command", cmd)
		return http.StatusNoContent, nil
	}
}

// parseCommand recognizes "/cmd", "/cmd@bot" and "/cmd args".
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.Fields(text)[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), true
}

func resolveChannel(req Request) (domain.Channel, bool) {
	if strings.TrimSpace(req.Channel) == "" {
		return domain.ChannelFromChatID(strings.TrimSpace(req.ChatID)), true
	}
	return domain.ParseChannel(req.Channel)
}

func reply(chatID, text string, products []domain.Product) chatResponse {
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{
			Name:     p.Name,
			Price:    p.Price,
			Promo:    p.HasPromo(),
			Currency: p.Currency,
			Quantity: p.Quantity,
			InStock:  p.InStock,
			ImageURL: p.ImageURL,
			Category: p.Category,
			Location: p.Location,
		})
	}
	return chatResponse{ChatID: chatID, Text: text, Products: views}
}

func reasonOf(err error) string {
	var uerr *usecase.Error
	if errors.As(err, &uerr) {
		return uerr.Reason
	}
	return ""
}

func jsonResponse(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	headers := map[string]string{CorrelationHeader: correlationID}
	if body == nil {
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		slog.Error("marshal response", "correlation_id", correlationID, "err", err)
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	headers["Content-Type"] = "application/json"
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(raw)}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var newUUID = func() string {
	return uuid.NewString()
}
