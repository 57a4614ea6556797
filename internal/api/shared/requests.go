package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/owl-api/internal/domain"
)

// MaxBodyBytes caps the size of a JSON request body.
const MaxBodyBytes = 1 << 20

// Global validator instance for reuse
var validate = validator.New()

// DecodeJSON decodes the request body into v. Unknown fields, trailing data and
// bodies over MaxBodyBytes are rejected with a domain.ValidationError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.NewValidationError("body", "must not be empty", nil)
		case errors.As(err, &maxErr):
			return domain.NewValidationError("body", fmt.Sprintf("must not exceed %d bytes", maxErr.Limit), nil)
		default:
			return domain.NewValidationError("body", "must be a valid JSON object", nil)
		}
	}
	if dec.More() {
		return domain.NewValidationError("body", "must contain a single JSON object", nil)
	}
	return nil
}

// ValidateRequest validates the given struct using the validator package.
func ValidateRequest(v any) error {
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}
	return validate.Struct(v)
}

// QueryInt reads an optional non-negative integer query parameter. A missing
// parameter yields def.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer", nil)
	}
	return n, nil
}

// QueryUint64 reads an optional unsigned integer query parameter, zero when absent.
func QueryUint64(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be a non-negative integer", nil)
	}
	return n, nil
}
