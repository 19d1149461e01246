package dto

import "time"

// SendCodeRequest starts an email sign-in.
type SendCodeRequest struct {
	Email string `json:"email" binding:"required"`
}

// SendCodeResponse carries the opaque reference the client echoes back on verify.
type SendCodeResponse struct {
	ChallengeRef string    `json:"challengeRef"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// VerifyCodeRequest redeems an emailed code. ChallengeToken is accepted as
// an alternative name for ChallengeRef.
type VerifyCodeRequest struct {
	Email          string `json:"email" binding:"required"`
	Code           string `json:"code" binding:"required"`
	ChallengeRef   string `json:"challengeRef"`
	ChallengeToken string `json:"challengeToken"`
}

// Ref returns whichever challenge reference field was supplied.
func (r *VerifyCodeRequest) Ref() string {
	if r.ChallengeRef != "" {
		return r.ChallengeRef
	}
	return r.ChallengeToken
}

// VerifyCodeResponse is returned after the session cookie is set.
type VerifyCodeResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionView is the best-effort session read. Token is nil when the
// signature could not be verified; all fields are nil when nothing decodes.
type SessionView struct {
	Token *string `json:"token"`
	Email *string `json:"email"`
	Exp   *int64  `json:"exp"`
}

// SignOutResponse is always {"ok": true}.
type SignOutResponse struct {
	OK bool `json:"ok"`
}
