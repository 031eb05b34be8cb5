// Package provider предоставляет клиент внешнего сервиса аренды номеров.
//
// Клиент не хранит состояния и не выполняет повторных попыток: любой
// неуспешный HTTP-ответ или некорректное тело поднимается вызывающему один
// раз, а временной ретрай обеспечивает цикл опроса монитора заказа.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mkoshel/numrent-system/internal/model"
)

// ErrNoStock возвращается, когда у провайдера нет свободных номеров
// для запрошенной комбинации страны, оператора и сервиса.
var ErrNoStock = errors.New("no free phones")

// Статусы заказа, сообщаемые провайдером.
const (
	StatusPending  = "PENDING"
	StatusReceived = "RECEIVED"
	StatusCanceled = "CANCELED"
	StatusTimeout  = "TIMEOUT"
	StatusFinished = "FINISHED"
	StatusBanned   = "BANNED"
)

// PurchasedNumber описывает купленный у провайдера номер.
type PurchasedNumber struct {
	OrderID     string
	PhoneNumber string
	Country     string
}

// Client инкапсулирует HTTP-взаимодействие с провайдером аренды номеров.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient создаёт клиент провайдера. Токен передаётся в каждом запросе
// как Bearer-авторизация.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetTimeout(5 * time.Second)

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

type buyResponse struct {
	ID      int64  `json:"id"`
	Phone   string `json:"phone"`
	Country string `json:"country"`
	Message string `json:"message"`
}

// Purchase покупает номер активации для указанных страны, оператора и сервиса.
func (c *Client) Purchase(ctx context.Context, country, operator, service string) (PurchasedNumber, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/v1/user/buy/activation/%s/%s/%s", country, operator, service))
	if err != nil {
		return PurchasedNumber{}, fmt.Errorf("buy activation: %w", err)
	}

	var body buyResponse
	decodeErr := json.Unmarshal(resp.Body(), &body)

	if resp.StatusCode() == http.StatusBadRequest && decodeErr == nil && body.Message == "no free phones" {
		return PurchasedNumber{}, ErrNoStock
	}

	if !resp.IsSuccess() || decodeErr != nil {
		c.logUnexpected("buy activation", resp, decodeErr)
		return PurchasedNumber{}, fmt.Errorf("buy activation: unexpected provider response, status %d", resp.StatusCode())
	}

	return PurchasedNumber{
		OrderID:     strconv.FormatInt(body.ID, 10),
		PhoneNumber: body.Phone,
		Country:     body.Country,
	}, nil
}

type checkResponse struct {
	Status string `json:"status"`
}

// CheckStatus запрашивает статус заказа. Используется монитором
// опциональным образом: отсутствие определённого статуса — не ошибка.
func (c *Client) CheckStatus(ctx context.Context, orderID string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v1/user/check/" + orderID)
	if err != nil {
		return "", fmt.Errorf("check order: %w", err)
	}

	var body checkResponse
	decodeErr := json.Unmarshal(resp.Body(), &body)

	if !resp.IsSuccess() || decodeErr != nil {
		c.logUnexpected("check order", resp, decodeErr)
		return "", fmt.Errorf("check order: unexpected provider response, status %d", resp.StatusCode())
	}

	return body.Status, nil
}

type finishResponse struct {
	SMS []struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
	} `json:"sms"`
}

// FetchMessages возвращает SMS, полученные на номер заказа.
// Пустой список — нормальный результат, пока сообщение не пришло.
func (c *Client) FetchMessages(ctx context.Context, orderID string) ([]model.SMS, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v1/user/finish/" + orderID)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var body finishResponse
	decodeErr := json.Unmarshal(resp.Body(), &body)

	if !resp.IsSuccess() || decodeErr != nil {
		c.logUnexpected("fetch messages", resp, decodeErr)
		return nil, fmt.Errorf("fetch messages: unexpected provider response, status %d", resp.StatusCode())
	}

	messages := make([]model.SMS, 0, len(body.SMS))
	for _, sms := range body.SMS {
		messages = append(messages, model.SMS{
			Sender: sms.Sender,
			Text:   sms.Text,
		})
	}

	return messages, nil
}

// Cancel отменяет заказ у провайдера.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v1/user/cancel/" + orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	if !resp.IsSuccess() {
		c.logUnexpected("cancel order", resp, nil)
		return fmt.Errorf("cancel order: unexpected provider response, status %d", resp.StatusCode())
	}

	return nil
}

// logUnexpected пишет в лог сырой ответ провайдера для диагностики.
// Пользователю такие детали не показываются.
func (c *Client) logUnexpected(op string, resp *resty.Response, decodeErr error) {
	c.logger.Error("unexpected provider response",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode()),
		zap.ByteString("body", resp.Body()),
		zap.Error(decodeErr),
	)
}
