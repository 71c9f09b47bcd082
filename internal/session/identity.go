package session

import (
	"time"

	"github.com/richxcame/ride-booking/pkg/middleware"
)

// Identity is who a session acts for. It is passed explicitly to every
// component that needs it.
type Identity struct {
	UserID string
	Role   string
	Token  string
}

// IdentityFromToken reads the identity out of an access token's claims.
func IdentityFromToken(token string, now time.Time) (Identity, error) {
	claims, err := middleware.ParseClaims(token, now)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, Role: claims.Role, Token: token}, nil
}
