package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client клиент Telegram Bot API поверх HTTP.
type Client struct {
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент Bot API. baseURL без токена,
// например https://api.telegram.org; pollTimeout задаёт длительность
// long poll в getUpdates, HTTP-таймаут берётся с запасом к нему.
func NewClient(baseURL, token string, pollTimeout time.Duration) *Client {
	return &Client{
		apiURL:     fmt.Sprintf("%s/bot%s", baseURL, token),
		httpClient: &http.Client{Timeout: pollTimeout + 10*time.Second},
	}
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	const op = "telegram.call"
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, &buf)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// GetUpdates возвращает обновления начиная с offset, блокируясь до timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	const op = "telegram.GetUpdates"
	payload := map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}
	var resp updatesResponse
	if err := c.call(ctx, "getUpdates", payload, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("%s: telegram api returned not ok", op)
	}
	return resp.Result, nil
}

// SendMessage отправляет HTML-сообщение в чат, опционально с inline-клавиатурой.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) error {
	const op = "telegram.SendMessage"
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	var resp apiResponse
	if err := c.call(ctx, "sendMessage", payload, &resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK {
		return fmt.Errorf("%s: %s", op, resp.Description)
	}
	return nil
}

// AnswerCallbackQuery подтверждает обработку нажатия inline-кнопки.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	const op = "telegram.AnswerCallbackQuery"
	var resp apiResponse
	if err := c.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID}, &resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// BanChatMember удаляет пользователя из группы (отзыв доступа по истечении вигенции).
func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	const op = "telegram.BanChatMember"
	payload := map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}
	var resp apiResponse
	if err := c.call(ctx, "banChatMember", payload, &resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK {
		return fmt.Errorf("%s: %s", op, resp.Description)
	}
	return nil
}
