// Package auth implements the delegated-trust authority authentication
// protocol. A request carries a JWT signed with the authority's private key.
// The token's claimed subject is decoded without verification, used only to
// look up that authority's public key in the directory, and the token is then
// fully verified against the directory key. The directory is the sole root of
// trust; no key material carried by the token itself is ever used.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Noah-Huppert/wallet-service/internal/model"
)

var (
	// ErrCredentialMissing indicates the request carried no bearer token.
	ErrCredentialMissing = errors.New("no authorization credential")

	// ErrUnknownAuthority indicates the token's claimed subject does not
	// exist in the directory. Externally indistinguishable from
	// ErrVerificationFailed so callers cannot probe for valid authority IDs.
	ErrUnknownAuthority = errors.New("unknown authority")

	// ErrVerificationFailed indicates the token's signature or temporal
	// claims did not verify against the directory-resolved public key.
	ErrVerificationFailed = errors.New("token verification failed")
)

// Directory resolves authority IDs to authority records. Implemented by the
// repository; read-only from the authenticator's point of view.
type Directory interface {
	Authority(ctx context.Context, id string) (model.Authority, error)
}

// VerifiedAuthority is the outcome of successful authentication: the
// directory record plus the claim set that verified against its key.
// Handlers may trust every field.
type VerifiedAuthority struct {
	Authority model.Authority
	Claims    VerifiedClaims
}

// Authenticator runs the authentication protocol against a directory.
type Authenticator struct {
	dir    Directory
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator backed by dir.
func NewAuthenticator(dir Directory, logger *slog.Logger) *Authenticator {
	return &Authenticator{dir: dir, logger: logger}
}

// Authenticate resolves a raw bearer token to a verified authority. Returns
// ErrCredentialMissing, ErrUnknownAuthority, or ErrVerificationFailed; any
// other failure (malformed token, directory fault) is wrapped into
// ErrVerificationFailed so the caller-visible outcome stays generic.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*VerifiedAuthority, error) {
	if raw == "" {
		return nil, ErrCredentialMissing
	}

	// Who does the token claim to be? Not proof of anything yet, only a
	// directory key to look up.
	unchecked, err := DecodeUnverified(raw)
	if err != nil {
		a.logger.Warn("failed to decode request token", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	authority, err := a.dir.Authority(ctx, unchecked.Subject)
	if err != nil {
		a.logger.Warn("request token specified non-existent authority",
			"claimed_subject", unchecked.Subject, "error", err)
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuthority, unchecked.Subject)
	}

	claims, err := a.verify(raw, authority.PublicKey)
	if err != nil {
		a.logger.Warn("failed to verify request token",
			"authority_id", authority.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	return &VerifiedAuthority{Authority: authority, Claims: *claims}, nil
}

func (a *Authenticator) verify(raw, publicKeyPEM string) (*VerifiedClaims, error) {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse authority public key: %w", err)
	}

	claims := VerifiedClaims{}
	_, err = jwt.ParseWithClaims(raw, &claims.RegisteredClaims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{"ES256", "ES384", "ES512"}))
	if err != nil {
		return nil, err
	}

	return &claims, nil
}

type contextKey struct{}

// WithAuthority attaches a verified authority to a request context.
func WithAuthority(ctx context.Context, va *VerifiedAuthority) context.Context {
	return context.WithValue(ctx, contextKey{}, va)
}

// FromContext returns the verified authority attached by the middleware, or
// nil if the request never passed authentication.
func FromContext(ctx context.Context) *VerifiedAuthority {
	va, _ := ctx.Value(contextKey{}).(*VerifiedAuthority)
	return va
}

type subjectRecorderKey struct{}

// WithSubjectRecorder arms a context so a later, nested authentication can
// report the verified subject back out. Used by request instrumentation,
// which wraps outside the auth middleware but wants the authority label.
func WithSubjectRecorder(ctx context.Context) context.Context {
	return context.WithValue(ctx, subjectRecorderKey{}, new(string))
}

// RecordedSubject returns the authority ID recorded during authentication,
// or "" if the request never authenticated.
func RecordedSubject(ctx context.Context) string {
	if rec, ok := ctx.Value(subjectRecorderKey{}).(*string); ok {
		return *rec
	}
	return ""
}

func recordSubject(ctx context.Context, id string) {
	if rec, ok := ctx.Value(subjectRecorderKey{}).(*string); ok {
		*rec = id
	}
}

// Middleware gates a handler behind the authentication protocol. A missing
// credential gets 401; every other failure, including panics inside the
// protocol, collapses to a generic 403 with no internal detail. Details are
// logged server-side only.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		va, err := a.safeAuthenticate(r)
		if err != nil {
			if errors.Is(err, ErrCredentialMissing) {
				a.logger.Warn("no authorization data",
					"method", r.Method, "path", r.URL.Path,
					"user_agent", r.UserAgent())
				writeError(w, http.StatusUnauthorized, "authorization data required")
				return
			}

			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		recordSubject(r.Context(), va.Authority.ID)
		next.ServeHTTP(w, r.WithContext(WithAuthority(r.Context(), va)))
	})
}

// safeAuthenticate converts panics inside the protocol into a verification
// failure. The recovery is scoped to authentication only; downstream handler
// panics stay on the internal error path.
func (a *Authenticator) safeAuthenticate(r *http.Request) (va *VerifiedAuthority, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("panic during authentication",
				"method", r.Method, "path", r.URL.Path, "panic", rec)
			va = nil
			err = fmt.Errorf("%w: authentication panic", ErrVerificationFailed)
		}
	}()

	return a.Authenticate(r.Context(), bearerToken(r))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
