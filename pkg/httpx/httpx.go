package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ppalomo/hashink/pkg/domain"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteDomainError renders a coded domain failure with the HTTP status its
// code maps to.
func WriteDomainError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	if code == "" {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	WriteError(w, StatusForCode(code), string(code), err.Error(), nil)
}

func StatusForCode(code domain.Code) int {
	switch code {
	case domain.CodeInvalidAmount, domain.CodeInvalidFee, domain.CodeNoRecipients,
		domain.CodeDuplicateRecipient, domain.CodeNoCreators, domain.CodeInvalidRef,
		domain.CodeAmountOverflow:
		return http.StatusBadRequest
	case domain.CodeRequestNotFound, domain.CodeNoSuchArtifact, domain.CodeCelebrityNotFound:
		return http.StatusNotFound
	case domain.CodeAlreadyFinalized, domain.CodeAlreadyCancelled,
		domain.CodeStillLocked, domain.CodeCelebrityExists:
		return http.StatusConflict
	case domain.CodeNotOwner, domain.CodeNotAuthorized, domain.CodeNotOwnerOrApproved:
		return http.StatusForbidden
	case domain.CodeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
