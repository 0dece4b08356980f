package habitauth

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/habitloop/habitauth/token"
)

// CreateSession describes the createsession operation and its observable behavior.
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
// CreateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The returned string is the encrypted token for the session cookie. The
// server-side record is persisted first; an encryption failure after a
// successful write leaves an orphan record that simply ages out.
func (e *Engine) CreateSession(ctx context.Context, userID string) (string, error) {
	if e == nil || e.sessionStore == nil || e.codec == nil {
		return "", ErrEngineNotReady
	}
	if userID == "" {
		return "", ErrSessionCreationFailed
	}

	now := time.Now()
	record := &SessionRecord{
		SessionID: uuid.NewString(),
		UserID:    userID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.Session.TTL).Unix(),
	}

	if err := e.sessionStore.Save(ctx, record); err != nil {
		e.emitAudit(ctx, auditEventSessionCreate, false, userID, "", record.SessionID, ErrSessionUnavailable, nil)
		return "", ErrSessionUnavailable
	}

	tok, err := e.codec.Encrypt(token.Payload{
		UserID:    record.UserID,
		SessionID: record.SessionID,
		IssuedAt:  record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	})
	if err != nil {
		e.emitAudit(ctx, auditEventSessionCreate, false, userID, "", record.SessionID, ErrSessionCreationFailed, nil)
		return "", ErrSessionCreationFailed
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreate, true, userID, "", record.SessionID, nil, nil)
	return tok, nil
}

// RevokeSessions describes the revokesessions operation and its observable behavior.
//
// RevokeSessions may return an error when input validation, dependency calls, or security checks fail.
// RevokeSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Logout semantics: every server-side session for userID is deleted in one
// call. Revoking a user with zero sessions is a no-op. Outstanding tokens
// keep resolving until their own expiry; see [Engine.Resolve].
func (e *Engine) RevokeSessions(ctx context.Context, userID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrSessionRevocationFailed
	}

	removed, err := e.sessionStore.DeleteAll(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionRevoke, false, userID, "", "", ErrSessionUnavailable, nil)
		return ErrSessionUnavailable
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoke, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{
			"removed": strconv.FormatInt(removed, 10),
		}
	})
	return nil
}

// Resolve decrypts a session token and returns its claims. The second
// return is false for absent, malformed, tampered, or expired tokens;
// Resolve never returns an error and never touches the store.
//
// Trusting the token's self-contained claims skips a store round-trip on
// every request. The cost is that RevokeSessions does not cut off tokens
// already in the wild — they stay valid until their embedded expiry. Use
// [Engine.ResolveStrict] where that window is unacceptable.
func (e *Engine) Resolve(tok string) (SessionClaims, bool) {
	if e == nil || e.codec == nil {
		return SessionClaims{}, false
	}

	payload, status := e.codec.Decrypt(tok, time.Now())
	switch status {
	case token.StatusOK:
		e.metricInc(MetricResolveOK)
		return SessionClaims{
			UserID:    payload.UserID,
			SessionID: payload.SessionID,
			ExpiresAt: time.Unix(payload.ExpiresAt, 0),
		}, true
	case token.StatusExpired:
		e.metricInc(MetricResolveExpired)
		return SessionClaims{}, false
	default:
		if tok != "" {
			e.metricInc(MetricResolveInvalid)
		}
		return SessionClaims{}, false
	}
}

// ResolveStrict is Resolve plus a store existence check, so revocation
// takes effect immediately at the price of one store round-trip per call.
func (e *Engine) ResolveStrict(ctx context.Context, tok string) (SessionClaims, bool, error) {
	claims, ok := e.Resolve(tok)
	if !ok {
		return SessionClaims{}, false, nil
	}

	exists, err := e.sessionStore.Exists(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return SessionClaims{}, false, ErrSessionUnavailable
	}
	if !exists {
		return SessionClaims{}, false, nil
	}
	return claims, true, nil
}

// IssueAPIToken mints a short-lived bearer token for the API namespace from
// a live session cookie. Returns ErrUnauthorized when the cookie does not
// resolve.
func (e *Engine) IssueAPIToken(ctx context.Context, sessionToken string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if e.apiTokens == nil {
		return "", ErrEngineNotReady
	}

	claims, ok := e.Resolve(sessionToken)
	if !ok {
		e.metricInc(MetricAPITokenRejected)
		e.emitAudit(ctx, auditEventAPITokenIssue, false, "", "", "", ErrUnauthorized, nil)
		return "", ErrUnauthorized
	}

	tok, err := e.apiTokens.Issue(claims.UserID, claims.SessionID)
	if err != nil {
		e.metricInc(MetricAPITokenRejected)
		e.emitAudit(ctx, auditEventAPITokenIssue, false, claims.UserID, "", claims.SessionID, err, nil)
		return "", ErrSessionCreationFailed
	}

	e.metricInc(MetricAPITokenIssued)
	e.emitAudit(ctx, auditEventAPITokenIssue, true, claims.UserID, "", claims.SessionID, nil, nil)
	return tok, nil
}

// VerifyAPIToken validates a bearer token minted by IssueAPIToken and
// returns the claims it carries. Expired and tampered tokens map to
// ErrUnauthorized.
func (e *Engine) VerifyAPIToken(tok string) (SessionClaims, error) {
	if e == nil || e.apiTokens == nil {
		return SessionClaims{}, ErrEngineNotReady
	}

	claims, err := e.apiTokens.Verify(tok)
	if err != nil {
		e.metricInc(MetricAPITokenRejected)
		return SessionClaims{}, ErrUnauthorized
	}

	return SessionClaims{
		UserID:    claims.UID,
		SessionID: claims.SID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
