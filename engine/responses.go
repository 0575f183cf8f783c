package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Response renders the outcome of a Handler to the client.
type Response func(http.ResponseWriter, *http.Request)

// JSON responds 200 with the given value serialized as JSON.
func JSON(v any) Response {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

// Empty responds 204 with no body.
func Empty() Response {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// Error logs the given error while returning a generic 500 response.
func Error(err error) Response {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Error("internal server error", "url", r.URL.Path, "error", err)
		writeErrorBody(w, http.StatusInternalServerError, "Internal error - please try again later")
	}
}

func Errorf(format string, args ...any) Response {
	return Error(fmt.Errorf(format, args...))
}

// ClientErrorf responds 400 with the given message. Use it for caller mistakes
// that the caller can correct and retry.
func ClientErrorf(format string, args ...any) Response {
	msg := fmt.Sprintf(format, args...)
	return func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusBadRequest, msg)
	}
}

func Unauthorized(err error) Response {
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			slog.Info("unauthorized request", "url", r.URL.Path, "error", err)
		}
		writeErrorBody(w, http.StatusUnauthorized, "Unauthorized")
	}
}

func Forbiddenf(format string, args ...any) Response {
	msg := fmt.Sprintf(format, args...)
	return func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusForbidden, msg)
	}
}

func NotFoundf(format string, args ...any) Response {
	msg := fmt.Sprintf(format, args...)
	return func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusNotFound, msg)
	}
}

// TooManyRequests responds 429. The client should back off and retry.
func TooManyRequests() Response {
	return func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusTooManyRequests, "Too many requests")
	}
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
}

func writeErrorBody(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&errorEnvelope{Error: errorBody{Message: msg}})
}
