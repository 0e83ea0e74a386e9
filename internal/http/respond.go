package httpserver

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Clark-Hu/movie-catalog/internal/apperr"
	"github.com/Clark-Hu/movie-catalog/internal/logging"
	"github.com/Clark-Hu/movie-catalog/internal/validation"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
	Message string            `json:"message,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      *int64 `json:"id,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// decodeFields decodes a JSON object into the struct dst one field at a time.
// A value of the wrong JSON type leaves its field zero and is returned as a
// message keyed by the field's JSON name; any other failure is returned as
// err for respondDecodeError.
func decodeFields(w http.ResponseWriter, r *http.Request, dst interface{}) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := decodeJSONBody(w, r, &raw); err != nil {
		return nil, err
	}

	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	index := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := validation.FieldName(t.Field(i)); name != "" {
			index[name] = i
		}
	}

	var mismatched map[string]string
	for key, value := range raw {
		i, ok := index[key]
		if !ok {
			return nil, fmt.Errorf("json: unknown field %q", key)
		}
		if err := json.Unmarshal(value, v.Field(i).Addr().Interface()); err != nil {
			var typeError *json.UnmarshalTypeError
			if !errors.As(err, &typeError) {
				return nil, err
			}
			if mismatched == nil {
				mismatched = make(map[string]string)
			}
			mismatched[key] = validation.TypeMismatch(t.Field(i))
		}
	}
	return mismatched, nil
}

// mergeViolations overlays type mismatches on the struct's rule violations.
func mergeViolations(violations, mismatched map[string]string) map[string]string {
	if len(mismatched) == 0 {
		return violations
	}
	if violations == nil {
		violations = make(map[string]string, len(mismatched))
	}
	for field, msg := range mismatched {
		violations[field] = msg
	}
	return violations
}

// rejectMismatched answers 422 with every violation of dst when decodeFields
// found type mismatches. It reports whether a response was written.
func (s *Server) rejectMismatched(w http.ResponseWriter, r *http.Request, dst interface{}, mismatched map[string]string) bool {
	if len(mismatched) == 0 {
		return false
	}
	s.respondAppError(w, r, apperr.ValidationFailed(mergeViolations(validation.Check(dst), mismatched)))
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusUnprocessableEntity
	case apperr.BadRequest:
		return http.StatusBadRequest
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.InvalidCredentials, apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError writes err using its kind. Anything that is not an
// *apperr.Error is treated as internal.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(apperr.Internal, "Internal server error", err)
	}
	status := statusFor(appErr.Kind)

	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("kind", appErr.Kind.String()).Msg("request failed")
	}

	body := errorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	}
	if s.cfg.Development() && appErr.Err != nil {
		body.Message = appErr.Err.Error()
	}
	s.respondJSON(w, status, body)
}

func (s *Server) respondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var tooLarge *http.MaxBytesError
	var msg string
	switch {
	case errors.As(err, &syntaxError):
		msg = "Malformed JSON payload"
	case errors.As(err, &typeError) && typeError.Field == "":
		msg = "Request body must be a JSON object"
	case errors.As(err, &typeError):
		msg = fmt.Sprintf("Invalid value for field %s", typeError.Field)
	case errors.Is(err, io.EOF):
		msg = "Request body cannot be empty"
	case errors.As(err, &tooLarge):
		msg = "Request body too large"
	default:
		msg = "Unable to parse request body"
	}
	s.respondAppError(w, r, apperr.Wrap(apperr.BadRequest, msg, err))
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name, label string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.BadRequest, "Invalid "+label+" ID")
	}
	return id, nil
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	if val == "" {
		return nil
	}
	return &val
}

func roundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10.0
}
