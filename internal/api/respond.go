package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xMathyu/hvac-scanner/internal/model"
	"github.com/xMathyu/hvac-scanner/internal/normalize"
	"github.com/xMathyu/hvac-scanner/internal/resilience"
	"github.com/xMathyu/hvac-scanner/internal/scanner"
	"github.com/xMathyu/hvac-scanner/internal/store"
)

const parseFailureMessage = "The photos could not be processed. Retake them and try again."

type errorBody struct {
	Error  string                  `json:"error"`
	Report *model.InspectionReport `json:"report,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// errorStatus maps a domain error to an HTTP status and client message.
func errorStatus(err error) (int, string) {
	switch {
	case scanner.IsInvalidImage(err):
		return http.StatusBadRequest, err.Error()
	case normalize.IsParseError(err):
		return http.StatusUnprocessableEntity, parseFailureMessage
	case store.IsNotFound(err):
		return http.StatusNotFound, "not found"
	case eris.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case eris.Is(err, resilience.ErrBreakerOpen):
		return http.StatusServiceUnavailable, "vision service temporarily unavailable"
	case resilience.IsTransient(err):
		return http.StatusBadGateway, "vision service error, try again"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorReport(w, r, err, nil)
}

// writeErrorReport writes err, attaching the report it left behind.
func writeErrorReport(w http.ResponseWriter, r *http.Request, err error, report *model.InspectionReport) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: msg, Report: report})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
