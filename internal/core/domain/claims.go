package domain

// Claims is the identity payload embedded in access and refresh tokens.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	// UserAgent is the client fingerprint captured at issuance, if any.
	UserAgent string `json:"userAgent,omitempty"`
}

// Subject is the authenticated caller of a request: the verified token
// claims merged with the current directory projection of the user.
type Subject struct {
	Claims
	User *User
}

// CurrentRole returns the subject's current role, preferring the directory record.
func (s *Subject) CurrentRole() string {
	if s == nil {
		return ""
	}
	if s.User != nil && s.User.Role != "" {
		return s.User.Role
	}
	return s.Claims.Role
}
