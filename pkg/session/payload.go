package session

import (
	"strings"

	"unibro/pkg/apierr"
	"unibro/pkg/domain"
)

// PayloadKind tags the two shapes credentials arrive in.
type PayloadKind int

const (
	// KindLoginResponse is a {token, user} pair from register/login/OAuth.
	KindLoginResponse PayloadKind = iota + 1
	// KindRawUser is a user object carrying its own token.
	KindRawUser
)

// AuthPayload is the input to Store.StoreAuthData.
type AuthPayload struct {
	Kind  PayloadKind
	Token string
	User  domain.User
}

// LoginResponse builds a payload from a backend auth response.
func LoginResponse(token string, user domain.User) AuthPayload {
	return AuthPayload{Kind: KindLoginResponse, Token: token, User: user}
}

// RawUser builds a payload from a user that embeds its token.
func RawUser(user domain.User) AuthPayload {
	return AuthPayload{Kind: KindRawUser, User: user}
}

// Normalize resolves p into a single user-with-token.
func Normalize(p AuthPayload) (domain.User, error) {
	user := p.User
	switch p.Kind {
	case KindLoginResponse:
		if token := strings.TrimSpace(p.Token); token != "" {
			user.Token = token
		}
	case KindRawUser:
	default:
		return domain.User{}, apierr.Validation("unknown auth payload")
	}
	if strings.TrimSpace(user.Token) == "" {
		return domain.User{}, apierr.Validation("auth payload carries no token")
	}
	return user, nil
}
