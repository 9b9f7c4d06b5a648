// Package utils provides utility functions for the modhub application.
package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Common error types for reuse.
var (
	ErrBadRequest          = NewError(fiber.StatusBadRequest, "Invalid request")
	ErrUnauthorized        = NewError(fiber.StatusUnauthorized, "Unauthorized")
	ErrForbidden           = NewError(fiber.StatusForbidden, "Forbidden")
	ErrNotFound            = NewError(fiber.StatusNotFound, "Resource not found")
	ErrConflict            = NewError(fiber.StatusConflict, "Resource already exists")
	ErrInternalServerError = NewError(fiber.StatusInternalServerError, "Internal server error")
)

// CustomError represents a structured error for the web app.
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewError creates a new Error with a status code, message, and optional details.
func NewError(code int, message string, details ...string) *CustomError {
	e := &CustomError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

// Error implements the error interface.
func (e *CustomError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("status %d: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// WithCause returns a copy of e carrying err as its details.
func (e *CustomError) WithCause(err error) *CustomError {
	c := *e
	if err != nil {
		c.Details = err.Error()
	}
	return &c
}

// WrapError wraps an existing error with a custom status and message.
func WrapError(err error, code int, message string) *CustomError {
	if err == nil {
		return NewError(code, message)
	}
	return NewError(code, message, err.Error())
}

// StatusOf returns the HTTP status carried by err, 500 for anything that is not a CustomError.
func StatusOf(err error) int {
	var appErr *CustomError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return fiber.StatusInternalServerError
}

// IsNotFound reports whether err is a 404 CustomError.
func IsNotFound(err error) bool {
	return StatusOf(err) == fiber.StatusNotFound
}

// HandleError sends a standardized {"error": ...} response. Details of 5xx errors are never exposed.
func HandleError(c *fiber.Ctx, err error) error {
	var appErr *CustomError
	if errors.As(err, &appErr) {
		body := fiber.Map{"error": appErr.Message}
		if appErr.Code < 500 && appErr.Details != "" {
			body["details"] = appErr.Details
		}
		return c.Status(appErr.Code).JSON(body)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Something went wrong",
	})
}
