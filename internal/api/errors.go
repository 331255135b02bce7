package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/medina-app/medina/internal/gateway"
)

func writeInvalidArgument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", message)
}

func writePayloadTooLarge(w http.ResponseWriter, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", msg)
}

// decodeBodyOrWriteInvalid decodes a JSON request body into dst.
func decodeBodyOrWriteInvalid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		writeInvalidArgument(w, "request body is required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writePayloadTooLarge(w, maxErr.Limit)
			return false
		}
		writeInvalidArgument(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// gatewayStatus maps a gateway wire error code to an HTTP status. Provider
// pass-through codes keep their original status semantics.
func gatewayStatus(code string) int {
	switch code {
	case gateway.CodeInvalidFieldSet, gateway.CodeInvalidEndpointClass,
		gateway.CodeMissingParameter, gateway.CodeInvalidParameter, "INVALID_REQUEST":
		return http.StatusBadRequest
	case gateway.CodeEndpointNotImplemented:
		return http.StatusNotImplemented
	case gateway.CodeLoadShed, gateway.CodeCircuitOpen, "SERVICE_UNAVAILABLE":
		return http.StatusServiceUnavailable
	case gateway.CodeBudgetExceeded, "RATE_LIMITED":
		return http.StatusTooManyRequests
	case gateway.CodeTimeout, "GATEWAY_TIMEOUT":
		return http.StatusGatewayTimeout
	case gateway.CodeNetworkError, "BAD_GATEWAY":
		return http.StatusBadGateway
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	case "NOT_FOUND":
		return http.StatusNotFound
	default:
		if n, ok := strings.CutPrefix(code, "HTTP_"); ok {
			if status, err := strconv.Atoi(n); err == nil && status >= 100 && status <= 599 {
				return status
			}
		}
		return http.StatusInternalServerError
	}
}
