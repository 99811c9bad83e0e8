package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"catalog-assistant/internal/domain"
	"catalog-assistant/internal/usecase"
)

type stubUseCase struct {
	out        usecase.TurnOutput
	err        error
	in         usecase.TurnInput
	turns      int
	resets     []string
	categories []string
	catErr     error
}

func (s *stubUseCase) HandleTurn(_ context.Context, in usecase.TurnInput) (usecase.TurnOutput, error) {
	s.turns++
	s.in = in
	return s.out, s.err
}

func (s *stubUseCase) Reset(chatID string) {
	s.resets = append(s.resets, chatID)
}

func (s *stubUseCase) Categories(context.Context) ([]string, error) {
	return s.categories, s.catErr
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/chat",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, uc ChatUseCase) *Handler {
	t.Helper()
	h, err := NewHandler(uc)
	require.NoError(t, err)
	return h
}

func price(v float64) *float64 { return &v }

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	uc := &stubUseCase{out: usecase.TurnOutput{
		Text: "La batería del iPhone 11 sale $25.",
		Products: []domain.Product{{
			Name: "Batería iPhone 11", Price: price(25), Currency: "USD", Quantity: 3, InStock: true,
			ImageURL: "https://cdn.example.com/bat.jpg",
		}},
	}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"chatId":"42","channel":"telegram","text":"cuanto cuesta bateria iphone 11"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.TurnInput{ChatID: "tg_42", Channel: domain.ChannelTelegram, Message: "cuanto cuesta bateria iphone 11"}, uc.in)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "tg_42", out.ChatID)
	require.Equal(t, "La batería del iPhone 11 sale $25.", out.Text)
	require.Len(t, out.Products, 1)
	require.Equal(t, "https://cdn.example.com/bat.jpg", out.Products[0].ImageURL)
	require.Equal(t, 25.0, *out.Products[0].Price)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandle_ChannelFromPrefixedChatID(t *testing.T) {
	uc := &stubUseCase{out: usecase.TurnOutput{Text: "ok"}}
	h := newTestHandler(t, uc)

	_, err := h.Handle(context.Background(), makeEvent(`{"chatId":"wa_5491100000000","text":"hola"}`))
	require.NoError(t, err)
	require.Equal(t, domain.ChannelWhatsApp, uc.in.Channel)
	require.Equal(t, "wa_5491100000000", uc.in.ChatID)
}

func TestHandle_InvalidRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "not json", body: `not-json`},
		{name: "unknown channel", body: `{"chatId":"1","channel":"fax","text":"hola"}`},
		{name: "missing chat id", body: `{"chatId":" ","text":"hola"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(tc.body))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Zero(t, uc.turns)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
		})
	}
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "message_too_long"}, status: http.StatusBadRequest},
		{name: "configuration", err: &usecase.Error{Code: usecase.ErrorConfiguration, Reason: "missing_api_key"}, status: http.StatusOK},
		{name: "rate limit exhausted", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "llm_rate_limit_exhausted"}, status: http.StatusOK},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "llm_error"}, status: http.StatusOK},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubUseCase{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(`{"chatId":"1","text":"hola"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			if tc.status == http.StatusBadRequest {
				out := parseBody[errorResponse](t, resp.Body)
				require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
				require.Equal(t, "message_too_long", out.Message)
				return
			}
			out := parseBody[chatResponse](t, resp.Body)
			require.Equal(t, apologyText, out.Text)
			require.Empty(t, out.Products)
		})
	}
}

func TestHandle_Commands(t *testing.T) {
	uc := &stubUseCase{categories: []string{"Baterías", "Pantallas"}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"chatId":"7","text":"/start"}`))
	require.NoError(t, err)
	require.Equal(t, welcomeText, parseBody[chatResponse](t, resp.Body).Text)

	resp, err = h.Handle(context.Background(), makeEvent(`{"chatId":"7","text":"/reset@tienda_bot"}`))
	require.NoError(t, err)
	require.Equal(t, resetText, parseBody[chatResponse](t, resp.Body).Text)
	require.Equal(t, []string{"tg_7", "tg_7"}, uc.resets)

	resp, err = h.Handle(context.Background(), makeEvent(`{"chatId":"7","text":"/help"}`))
	require.NoError(t, err)
	require.Equal(t, helpText, parseBody[chatResponse](t, resp.Body).Text)

	resp, err = h.Handle(context.Background(), makeEvent(`{"chatId":"7","text":"/categories"}`))
	require.NoError(t, err)
	require.Equal(t, "Categorías disponibles:\n- Baterías\n- Pantallas", parseBody[chatResponse](t, resp.Body).Text)

	resp, err = h.Handle(context.Background(), makeEvent(`{"chatId":"7","text":"/unknown"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, resp.Body)

	require.Zero(t, uc.turns)
}

func TestHandle_SpanishCategoriesCommand(t *testing.T) {
	uc := &stubUseCase{categories: []string{"Baterías"}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"chatId":"7","text":"/categorias"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Categorías disponibles:\n- Baterías", parseBody[chatResponse](t, resp.Body).Text)
	require.Zero(t, uc.turns)
}

func TestHandle_CategoriesFailureApologizes(t *testing.T) {
	h := newTestHandler(t, &stubUseCase{catErr: errors.New("db down")})
	resp, err := h.Handle(context.Background(), makeEvent(`{"chatId":"7","text":"/categories"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, apologyText, parseBody[chatResponse](t, resp.Body).Text)

	h = newTestHandler(t, &stubUseCase{})
	resp, err = h.Handle(context.Background(), makeEvent(`{"chatId":"7","text":"/categories"}`))
	require.NoError(t, err)
	require.Equal(t, noCategoriesText, parseBody[chatResponse](t, resp.Body).Text)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubUseCase{out: usecase.TurnOutput{Text: "ok"}})

	event := makeEvent(`{"chatId":"1","text":"hola"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_GeneratesCorrelationID(t *testing.T) {
	orig := newUUID
	newUUID = func() string { return "generated-id" }
	t.Cleanup(func() { newUUID = orig })

	h := newTestHandler(t, &stubUseCase{out: usecase.TurnOutput{Text: "ok"}})
	resp, err := h.Handle(context.Background(), makeEvent(`{"chatId":"1","text":"hola"}`))
	require.NoError(t, err)
	require.Equal(t, "generated-id", resp.Headers["X-Correlation-Id"])
}

func TestParseCommand(t *testing.T) {
	cmd, ok := parseCommand("/Categories extra")
	require.True(t, ok)
	require.Equal(t, "/categories", cmd)

	_, ok = parseCommand("precio /pantalla")
	require.False(t, ok)
}
