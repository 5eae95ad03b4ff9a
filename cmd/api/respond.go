package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"dreamkeys/apperr"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Authorization failures always carry
// the same fixed message; internal errors are logged and never echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	resp := errorResponse{}
	if ae, ok := apperr.As(err); ok {
		resp.Code = ae.Code
		resp.Message = ae.Message
	}

	switch kind {
	case apperr.KindUnauthorized:
		resp.Message = "unauthorized access"
	case apperr.KindForbidden:
		resp.Message = "forbidden access"
	case apperr.KindInternal:
		zlog.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("internal error")
		resp = errorResponse{Message: "internal server error"}
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a single JSON object into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidArgument("request body is empty")
		}
		return apperr.InvalidArgument("invalid json: %v", err)
	}
	if dec.More() {
		return apperr.InvalidArgument("request body must contain a single json object")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperr.InvalidArgument("%v", err)
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.InvalidArgument("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid id", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

type createdResponse struct {
	Message    string `json:"message"`
	InsertedID string `json:"insertedId"`
	Data       any    `json:"data"`
}

type mutationResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeMutation(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, mutationResponse{Message: message, Data: data})
}
