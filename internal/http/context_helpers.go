package httpx

import (
	"context"
	"errors"
	"net/http"

	domainauth "github.com/target/marketpulse/internal/domain/auth"
)

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id assigned by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// OwnerFromContext returns the owner identified by RequireOwner.
func OwnerFromContext(ctx context.Context) (string, bool) {
	id, ok := domainauth.IdentityFrom(ctx)
	if !ok {
		return "", false
	}
	return id.Owner, true
}

// requireOwner writes a 401 and returns false when the request carries no owner.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := OwnerFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return "", false
	}
	return owner, true
}
