package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/AksharDP/modhub/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

// Response holds a standardized API response fields.
type Response struct {
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ResponseBuilder builds a response with a fluent interface.
type ResponseBuilder struct {
	Ctx        context.Context
	C          *fiber.Ctx
	Status     int
	Message    string
	Data       interface{}
	Pagination *Pagination
}

// Success starts a standardized success response.
func Success(c *fiber.Ctx) *ResponseBuilder {
	return &ResponseBuilder{
		Ctx:    c.UserContext(),
		C:      c,
		Status: fiber.StatusOK,
	}
}

// WithStatus overrides the 200 default.
func (b *ResponseBuilder) WithStatus(status int) *ResponseBuilder {
	b.Status = status
	return b
}

// WithMessage adds a custom message to the response.
func (b *ResponseBuilder) WithMessage(msg string) *ResponseBuilder {
	b.Message = msg
	return b
}

// WithData adds data to the response.
func (b *ResponseBuilder) WithData(data interface{}) *ResponseBuilder {
	b.Data = data
	return b
}

// WithPagination attaches the pagination envelope.
func (b *ResponseBuilder) WithPagination(p Pagination) *ResponseBuilder {
	b.Pagination = &p
	return b
}

// Send sends the response and logs it.
func (b *ResponseBuilder) Send() error {
	resp := Response{
		Message:    b.Message,
		Data:       b.Data,
		Pagination: b.Pagination,
	}

	if log, ok := b.C.Locals("logger").(*logger.Logger); ok {
		log.Debug(b.Ctx).WithMeta(map[string]string{
			"status":  fmt.Sprintf("%d", b.Status),
			"path":    b.C.Path(),
			"method":  b.C.Method(),
			"latency": time.Since(b.C.Context().Time()).String(),
		}).Logs("Response sent")
	}

	return b.C.Status(b.Status).JSON(resp)
}

// SendSuccess is a convenience function to send a success response directly.
func SendSuccess(c *fiber.Ctx, data interface{}) error {
	return Success(c).WithData(data).Send()
}

// SendPage sends a list with its pagination envelope.
func SendPage(c *fiber.Ctx, data interface{}, p Pagination) error {
	return Success(c).WithData(data).WithPagination(p).Send()
}
