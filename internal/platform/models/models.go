package models

const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusPending   = "pending"
)

const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusExpired  = "expired"
	InvitationStatusRevoked  = "revoked"
)

const (
	SubscriberStatusSubscribed   = "subscribed"
	SubscriberStatusUnsubscribed = "unsubscribed"
)

type Tenant struct {
	ID        int64  `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	SeatLimit int    `json:"seat_limit"` // 0 means unlimited
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type Role struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

type User struct {
	ID           int64  `json:"id"`
	TenantID     *int64 `json:"tenant_id"` // nil for platform-level users
	RoleID       *int64 `json:"role_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Status       string `json:"status"`
	LastLoginAt  *int64 `json:"last_login_at,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`

	// Role is set when the role relation was loaded together with the user.
	Role *Role `json:"role,omitempty"`
}

type Invitation struct {
	ID         int64  `json:"id"`
	TenantID   int64  `json:"tenant_id"`
	Email      string `json:"email"`
	TokenHash  string `json:"-"`
	RoleID     int64  `json:"role_id"`
	InvitedBy  *int64 `json:"invited_by,omitempty"`
	Status     string `json:"status"`
	ExpiresAt  *int64 `json:"expires_at"`
	AcceptedAt *int64 `json:"accepted_at,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`

	// Token holds the plain bearer token right after issuance only.
	Token string `json:"-"`
}

type AuditLog struct {
	ID          int64                  `json:"id"`
	ActorID     int64                  `json:"actor_id"`
	Action      string                 `json:"action"`
	SubjectType string                 `json:"subject_type"`
	SubjectID   int64                  `json:"subject_id"`
	Meta        map[string]interface{} `json:"meta"`
	CreatedAt   int64                  `json:"created_at"`
}

type Subscriber struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	Status         string `json:"status"`
	UnsubscribedAt *int64 `json:"unsubscribed_at,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

type Session struct {
	ID           string `json:"id"`
	UserID       int64  `json:"user_id"`
	IPAddress    string `json:"ip_address"`
	UserAgent    string `json:"user_agent"`
	LastActivity int64  `json:"last_activity"`
	CreatedAt    int64  `json:"created_at"`
}

type PasswordReset struct {
	Email     string `json:"email"`
	TokenHash string `json:"-"`
	CreatedAt int64  `json:"created_at"`
}
