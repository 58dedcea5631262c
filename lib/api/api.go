package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"tsa/lib/apperrors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

func jsonHeaders() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
	}
}

// SuccessResponse creates a successful API Gateway response
func SuccessResponse(statusCode int, data interface{}, logger *logrus.Logger) events.APIGatewayProxyResponse {
	body, err := json.Marshal(data)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal response data")
		return ErrorResponse(http.StatusInternalServerError, "Internal server error", logger)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Body:       string(body),
		Headers:    jsonHeaders(),
	}
}

// ErrorResponse creates an error API Gateway response
func ErrorResponse(statusCode int, message string, logger *logrus.Logger) events.APIGatewayProxyResponse {
	errorData := map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	}

	body, err := json.Marshal(errorData)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal error response")
		body = []byte(`{"error":true,"message":"Internal server error","status":500}`)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Body:       string(body),
		Headers:    jsonHeaders(),
	}
}

// ValidationErrorResponse creates a validation error response
func ValidationErrorResponse(message string, fields []string, logger *logrus.Logger) events.APIGatewayProxyResponse {
	if fields == nil {
		fields = []string{}
	}
	errorData := map[string]interface{}{
		"error":      true,
		"message":    message,
		"status":     http.StatusBadRequest,
		"validation": fields,
	}

	body, err := json.Marshal(errorData)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal validation error response")
		return ErrorResponse(http.StatusInternalServerError, "Internal server error", logger)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(body),
		Headers:    jsonHeaders(),
	}
}

// FromError converts an error into the matching response. Internal errors are
// logged with their cause and answered with a generic message.
func FromError(err error, logger *logrus.Logger) events.APIGatewayProxyResponse {
	appErr := apperrors.FromError(err)
	switch appErr.Code {
	case apperrors.CodeValidation:
		return ValidationErrorResponse(appErr.Message, appErr.Fields, logger)
	case apperrors.CodeInternal:
		logger.WithFields(logrus.Fields{
			"operation": "FromError",
			"error":     err.Error(),
		}).Error("Request failed with internal error")
		return ErrorResponse(http.StatusInternalServerError, appErr.Message, logger)
	default:
		return ErrorResponse(appErr.Status, appErr.Message, logger)
	}
}

// ParseJSONBody decodes a request body, rejecting empty bodies and trailing data.
func ParseJSONBody(body string, target interface{}) error {
	if len(bytes.TrimSpace([]byte(body))) == 0 {
		return errors.New("request body is empty")
	}

	decoder := json.NewDecoder(bytes.NewBufferString(body))
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return errors.New("request body contains more than one JSON value")
	}
	return nil
}
