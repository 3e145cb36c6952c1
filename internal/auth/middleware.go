package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/learnquest/internal/model"
	"github.com/sakif/learnquest/internal/repository"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "user", u), ANY package that knows the string "user"
// can read or shadow your value. Using a package-private type prevents
// collisions: only THIS package can create a key of type contextKey, so only
// this package can read or write identity values in the context.
type contextKey string

const userKey contextKey = "user"

// RequireAuth is the authentication gate for protected routes.
//
// It extracts the JWT (Authorization header or cookie, see extractToken),
// validates it, loads the user it names — WITHOUT secret fields — and
// stores the full *model.User in the request context. If any step fails
// the chain stops with 401 before the downstream handler runs.
//
// WHY LOAD THE USER HERE AND NOT JUST THE ID?
// The token only carries the user ID. Role checks (RequireRole) and most
// handlers need the current record — role, name, email — and loading it
// once in the middleware means (a) a deleted account's still-valid token
// stops working immediately, and (b) handlers never re-fetch the caller.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler that wraps it. Chi applies them in a chain:
// req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService, users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticate(r, tokens, users)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves the caller's identity if a valid token is present,
// but does NOT block the request if it's missing or invalid.
//
// Use this on public routes where logged-in users see extra data but
// anonymous access is fine. Handlers check via CurrentUser — if it returns
// (nil, false), the request is anonymous.
func OptionalAuth(tokens *TokenService, users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, err := authenticate(r, tokens, users); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userKey, user))
			}
			// Always continue — no 401 even with no token
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole is the authorization gate. It must run AFTER RequireAuth
// (it reads the identity RequireAuth put in the context).
//
// 401 vs 403:
//   - 401 Unauthorized: we don't know who you are (missing/invalid token)
//   - 403 Forbidden: we know exactly who you are, and the answer is no
//
// An authenticated caller whose role isn't in the permitted set gets 403 —
// their token is fine, their privileges aren't.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	permitted := make(map[model.Role]bool, len(roles))
	for _, role := range roles {
		permitted[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				// RequireRole without RequireAuth in front is a wiring bug;
				// fail closed rather than letting the request through.
				writeUnauthorized(w)
				return
			}

			if !permitted[user.Role] {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"forbidden","message":"insufficient role for this operation"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CurrentUser retrieves the authenticated user from the request context.
//
// Returns (nil, false) if the request is anonymous (no valid token).
// On RequireAuth-protected routes it always returns (user, true).
func CurrentUser(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// authenticate validates the request's token and resolves the user record.
// Shared by RequireAuth and OptionalAuth.
func authenticate(r *http.Request, tokens *TokenService, users repository.UserRepository) (*model.User, error) {
	tokenStr, err := extractToken(r)
	if err != nil {
		return nil, err
	}

	userID, err := tokens.Validate(tokenStr)
	if err != nil {
		return nil, err
	}

	// GetByID never returns secret fields — the identity attached to the
	// context is safe to serialize in any handler.
	user, err := users.GetByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// extractToken finds the JWT on the request.
//
// TWO TRANSPORTS, ONE TOKEN:
//  1. "Authorization: Bearer <jwt>" — the standard header, used by API
//     clients and the admin front end.
//  2. The "token" HttpOnly cookie — set on login for the browser client.
//     HttpOnly means JavaScript cannot read it, which stops XSS from
//     stealing the session.
//
// The header wins when both are present: an explicit header is a more
// deliberate signal than an ambient cookie.
func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return "", ErrInvalidToken
		}
		return token, nil
	}

	cookie, err := r.Cookie("token")
	if err != nil || cookie.Value == "" {
		// http.ErrNoCookie — no credentials at all
		return "", ErrInvalidToken
	}
	return cookie.Value, nil
}

// writeUnauthorized emits the uniform 401 body. Every authentication
// failure — no token, expired token, forged token, unknown user — produces
// this exact response.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
}
