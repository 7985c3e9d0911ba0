package auth

import "maps"

const ClaimEmail = "email"

// Claims is the decoded payload of a verified token. It is read-only; Map
// returns a copy.
type Claims struct {
	values map[string]any
}

func NewClaims(values map[string]any) Claims {
	return Claims{values: maps.Clone(values)}
}

func (c Claims) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Email returns the email claim when it is present and a string.
func (c Claims) Email() (string, bool) {
	email, ok := c.values[ClaimEmail].(string)
	return email, ok
}

// HasEmail reports whether the token carried an email claim of any type,
// including null.
func (c Claims) HasEmail() bool {
	_, ok := c.values[ClaimEmail]
	return ok
}

func (c Claims) Map() map[string]any {
	if c.values == nil {
		return map[string]any{}
	}
	return maps.Clone(c.values)
}
