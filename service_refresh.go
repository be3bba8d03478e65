package authcore

import (
	"context"
	"errors"

	"github.com/repensar/authcore/audit"
	"github.com/repensar/authcore/ratelimit"
	"github.com/repensar/authcore/token"
)

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair issued under the same family. Presenting an already-consumed
// token revokes the entire family and returns [ErrTokenReuseDetected].
//
// Refreshes are budgeted per family so one hot session cannot starve
// others; undecodable tokens fall back to the client IP bucket.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	identity := "fam:" + s.tokens.FamilyHint(refreshToken)
	if identity == "fam:" {
		identity = "ip:" + clientIPFromContext(ctx)
	}
	if err := s.checkLimit(ctx, identity, ratelimit.ActionRefresh); err != nil {
		return Pair{}, err
	}

	pair, err := s.tokens.Refresh(ctx, refreshToken, s.device(ctx))
	if err != nil {
		var reuse *token.ReuseDetectedError
		if errors.As(err, &reuse) {
			s.emit(ctx, auditEventTokenReuseDetected, audit.SeverityCritical, false, reuse.UserID, ErrTokenReuseDetected, map[string]string{
				"family_id": reuse.FamilyID,
			})
			s.emit(ctx, auditEventFamilyRevoked, audit.SeverityWarning, true, reuse.UserID, nil, map[string]string{
				"family_id": reuse.FamilyID,
				"reason":    "reuse",
			})
			return Pair{}, ErrTokenReuseDetected
		}
		err = mapError(err)
		if errors.Is(err, ErrStoreUnavailable) {
			s.emit(ctx, auditEventStoreUnavailable, audit.SeverityWarning, false, "", err, nil)
		}
		return Pair{}, err
	}

	s.emit(ctx, auditEventTokenRefreshed, audit.SeverityInfo, true, pair.UserID, nil, map[string]string{
		"family_id": pair.FamilyID,
	})
	return pair, nil
}
