package models

import "time"

// User is the persisted application user, kept eventually consistent with the
// identity provider's directory by the scheduled sync.
type User struct {
	ID           string        `bson:"_id,omitempty" json:"id"`
	ClerkID      string        `bson:"clerkId,omitempty" json:"clerkId,omitempty"`
	AuthProvider string        `bson:"authProvider" json:"authProvider"`
	Email        string        `bson:"email" json:"email"`
	FirstName    string        `bson:"firstName" json:"firstName"`
	LastName     string        `bson:"lastName" json:"lastName"`
	LastLogin    time.Time     `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt" json:"updatedAt"`
	SocialLogins []SocialLogin `bson:"socialLogins,omitempty" json:"socialLogins,omitempty"`
}

// SocialLogin is a linked third-party account. Entries are appended by the
// sync and never rewritten; (Provider, ProviderID) is unique within one user.
type SocialLogin struct {
	Provider   string          `bson:"provider" json:"provider"`
	ProviderID string          `bson:"providerId" json:"providerId"`
	Data       SocialLoginData `bson:"data" json:"data"`
	LastUsed   time.Time       `bson:"lastUsed" json:"lastUsed"`
	CreatedAt  time.Time       `bson:"createdAt" json:"createdAt"`
}

// SocialLoginData carries the provider-side profile snapshot.
type SocialLoginData struct {
	Email     string `bson:"email,omitempty" json:"email,omitempty"`
	Username  string `bson:"username,omitempty" json:"username,omitempty"`
	AvatarURL string `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
}

// HasSocialLogin reports whether a linked account with the given provider and
// provider-side id is already present.
func (u *User) HasSocialLogin(provider, providerID string) bool {
	for _, sl := range u.SocialLogins {
		if sl.Provider == provider && sl.ProviderID == providerID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	cp := *u
	if u.SocialLogins != nil {
		cp.SocialLogins = make([]SocialLogin, len(u.SocialLogins))
		copy(cp.SocialLogins, u.SocialLogins)
	}
	return &cp
}
