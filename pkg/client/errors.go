package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/fruitsalade/pagemedia/pkg/protocol"
)

// APIError is a non-2xx response from the media API.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed: %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.Status, e.Message)
}

func newAPIError(op string, status int, body []byte) *APIError {
	e := &APIError{Op: op, Status: status}
	var errResp protocol.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		e.Message = errResp.Error
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// UserMessage converts err into the message shown to end users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return "Tu sesión ha expirado. Inicia sesión nuevamente."
		case apiErr.Status == http.StatusForbidden:
			return "No tienes permisos para realizar esta acción."
		case apiErr.Status == http.StatusNotFound:
			return "El archivo o la carpeta no existe."
		case apiErr.Status == http.StatusRequestEntityTooLarge:
			return "El archivo es demasiado grande."
		case apiErr.Status >= 500:
			return "Error del servidor. Inténtalo de nuevo más tarde."
		case apiErr.Message != "":
			return "No se pudo completar la operación: " + apiErr.Message
		default:
			return "No se pudo completar la operación."
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "La solicitud tardó demasiado. Inténtalo de nuevo."
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "No se pudo conectar con el servidor."
	}
	return "Ocurrió un error inesperado."
}
