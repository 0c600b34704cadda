package model

import "time"

// Tier is the service level of a registered domain.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium
}

const (
	ProviderLocal = "local"
	ProviderKakao = "kakao"
)

// User is the principal that owns registered domains and whose identity
// is embedded in issued tokens.
type User struct {
	ID           int64
	Email        string
	Nick         string
	PasswordHash string `json:"-"`
	Provider     string
	SNSID        string
	CreatedAt    time.Time
	DeletedAt    *time.Time `json:",omitempty"`
}

// Domain is a caller allowed to exchange its secret for tokens.
type Domain struct {
	ID        int64
	UserID    int64
	Host      string
	Tier      Tier
	Secret    string `json:"-"`
	CreatedAt time.Time
	DeletedAt *time.Time `json:",omitempty"`
}

func (d Domain) Deleted() bool {
	return d.DeletedAt != nil
}

type Post struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Img       string    `json:"img,omitempty"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Hashtag struct {
	ID        int64
	Title     string
	CreatedAt time.Time
}

// Claims are the decoded contents of a verified token.
type Claims struct {
	ID        int64     `json:"id"`
	Nick      string    `json:"nick"`
	Issuer    string    `json:"iss"`
	TokenID   string    `json:"jti,omitempty"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// SiteStats summarises the store for health output.
type SiteStats struct {
	Users   int64
	Domains int64
	Posts   int64
}
