package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrEmptyBaseURL indicates the client was constructed without a backend URL.
	ErrEmptyBaseURL = errors.New("rest.empty_base_url")
	// ErrMissingEnvelopeField indicates the response envelope lacked the resource field.
	ErrMissingEnvelopeField = errors.New("rest.missing_envelope_field")
)

// APIError is a non-2xx backend response, carrying the envelope mensaje.
type APIError struct {
	StatusCode int
	Mensaje    string
	Path       string
}

// Error renders the backend failure with its status and mensaje.
func (apiErr *APIError) Error() string {
	return fmt.Sprintf("rest.api_error: %d %s: %s", apiErr.StatusCode, apiErr.Path, apiErr.Mensaje)
}

// Client talks to the Loopin backend. Every response is a JSON envelope of
// shape { <resource>: T | T[], mensaje?: string }.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a backend client for the given base URL.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("rest.new_client: %w", ErrEmptyBaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: trimmed, httpClient: httpClient, logger: logger}, nil
}

// get issues a GET and decodes the envelope's resource field into out.
func (client *Client) get(ctx context.Context, path string, bearerToken string, resource string, out any) (string, error) {
	return client.send(ctx, http.MethodGet, path, bearerToken, nil, resource, out)
}

// send issues a request with an optional JSON body and decodes the envelope.
// It returns the envelope mensaje; non-2xx responses become *APIError.
func (client *Client) send(ctx context.Context, method string, path string, bearerToken string, body any, resource string, out any) (string, error) {
	var requestBody io.Reader
	if body != nil {
		encoded, encodeErr := json.Marshal(body)
		if encodeErr != nil {
			return "", fmt.Errorf("rest.encode %s %s: %w", method, path, encodeErr)
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, requestErr := http.NewRequestWithContext(ctx, method, client.baseURL+path, requestBody)
	if requestErr != nil {
		return "", fmt.Errorf("rest.request %s %s: %w", method, path, requestErr)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if bearerToken != "" {
		request.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		return "", fmt.Errorf("rest.do %s %s: %w", method, path, doErr)
	}
	defer func() { _ = response.Body.Close() }()

	payload, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return "", fmt.Errorf("rest.read %s %s: %w", method, path, readErr)
	}

	mensaje, decodeErr := decodeEnvelope(payload, resource, out)
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		client.logger.Warn("backend error response",
			zap.String("code", "rest.api_error"),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("mensaje", mensaje),
		)
		return mensaje, &APIError{StatusCode: response.StatusCode, Mensaje: mensaje, Path: path}
	}
	if decodeErr != nil {
		return mensaje, fmt.Errorf("rest.decode %s %s: %w", method, path, decodeErr)
	}
	return mensaje, nil
}

// decodeEnvelope extracts mensaje and, when out is non-nil, the resource
// field. The mensaje is returned even when the resource field is absent so
// callers can classify backend signals on error responses.
func decodeEnvelope(payload []byte, resource string, out any) (string, error) {
	if len(payload) == 0 {
		if out != nil {
			return "", ErrMissingEnvelopeField
		}
		return "", nil
	}
	var envelope map[string]json.RawMessage
	if unmarshalErr := json.Unmarshal(payload, &envelope); unmarshalErr != nil {
		return "", unmarshalErr
	}
	mensaje := ""
	if rawMensaje, found := envelope["mensaje"]; found {
		_ = json.Unmarshal(rawMensaje, &mensaje)
	}
	if out == nil || resource == "" {
		return mensaje, nil
	}
	rawResource, found := envelope[resource]
	if !found {
		return mensaje, fmt.Errorf("%w: %s", ErrMissingEnvelopeField, resource)
	}
	if unmarshalErr := json.Unmarshal(rawResource, out); unmarshalErr != nil {
		return mensaje, unmarshalErr
	}
	return mensaje, nil
}

// AsAPIError extracts the APIError from an error chain, when present.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == statusCode
}
