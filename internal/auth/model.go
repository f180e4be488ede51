package auth

import "time"

type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of an account.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (a Account) Profile() Profile {
	return Profile{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}

type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// Tokens is the credential pair handed to clients. The expiry fields are
// only set for remember-me logins.
type Tokens struct {
	Access         string     `json:"access"`
	Refresh        string     `json:"refresh"`
	AccessExpires  *time.Time `json:"access_expires,omitempty"`
	RefreshExpires *time.Time `json:"refresh_expires,omitempty"`
}

type RememberMeToken struct {
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	UpdatedAt time.Time
}

type PasswordResetCode struct {
	ID        string
	AccountID string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
}

// Redeemable reports whether the code can still be exchanged for a new password.
func (c PasswordResetCode) Redeemable(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

type CleanupResult struct {
	DeletedRefreshTokens    int64 `json:"deleted_refresh_tokens"`
	DeletedRememberMeTokens int64 `json:"deleted_remember_me_tokens"`
	DeletedResetCodes       int64 `json:"deleted_reset_codes"`
}

// Clock is injected so expiry rules can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
