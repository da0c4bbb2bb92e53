package models

// Credential is the token pair the client authenticates with.
// It is always replaced as a whole, never field by field.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsZero reports whether no access token is present.
func (c Credential) IsZero() bool {
	return c.AccessToken == ""
}
