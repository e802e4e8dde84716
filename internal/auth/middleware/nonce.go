package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNonceMismatch = errors.New("nonce does not match this action")

type nonceClaims struct {
	Action string `json:"act"`
	Ref    string `json:"ref"`
	jwt.RegisteredClaims
}

// IssueNonce signs a token that lets subject perform action on ref until ttl elapses.
func (a *AuthService) IssueNonce(subject, action, ref string, ttl time.Duration) (string, error) {
	now := a.now()
	c := &nonceClaims{
		Action: action,
		Ref:    ref,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceNonce},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.hmac)
}

// VerifyNonce checks signature, expiry and that the token was issued for exactly this
// subject, action and ref.
func (a *AuthService) VerifyNonce(token, subject, action, ref string) error {
	if token == "" {
		return errors.New("missing nonce")
	}
	c := &nonceClaims{}
	if _, err := jwt.ParseWithClaims(token, c, a.keyFunc, a.parserOpts(audienceNonce)...); err != nil {
		return err
	}
	if c.Subject != subject || c.Action != action || c.Ref != ref {
		return ErrNonceMismatch
	}
	return nil
}

// NonceSubject returns the subject of a validly signed, unexpired nonce. The nonce still
// has to pass VerifyNonce for the action it is used for.
func (a *AuthService) NonceSubject(token string) (string, error) {
	c := &nonceClaims{}
	if _, err := jwt.ParseWithClaims(token, c, a.keyFunc, a.parserOpts(audienceNonce)...); err != nil {
		return "", err
	}
	if c.Subject == "" {
		return "", errors.New("nonce has no subject")
	}
	return c.Subject, nil
}
