package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// ErrorBody is the error envelope: {"error":{"kind","code","message"}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request. Kind is the wire name of the
// error kind; Code names the specific condition when there is one.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch kind := types.KindOf(err); {
	case errors.Is(kind, types.ErrSchema):
		return http.StatusBadRequest
	case errors.Is(kind, types.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(kind, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, types.ErrConflict), errors.Is(kind, types.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(kind, types.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// Envelope builds the error body for err. Transport errors hide their
// message since it may carry connection details.
func Envelope(err error) ErrorBody {
	d := ErrorDetail{Kind: types.KindName(err), Message: err.Error()}
	if c := types.CodeOf(err); c != nil {
		d.Code = c.Name()
	}
	if d.Kind == types.KindName(types.ErrTransport) && d.Code == "" {
		d.Message = errInternal.Error()
	}
	return ErrorBody{Error: d}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, Envelope(err))
}
