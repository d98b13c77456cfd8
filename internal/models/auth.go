package models

// TokenPair is the access/refresh credential pair issued by the backend.
// It is persisted under the fixed keys access_token and refresh_token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both credentials are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// IsZero reports whether neither credential is present.
func (p TokenPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// LoginRequest is the body of POST /authentication/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
