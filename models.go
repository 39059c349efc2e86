package auth

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the lifecycle state of an account
type UserStatus string

const (
	// UserStatusPending is an invitation placeholder without password
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is a regular account
	UserStatusActive UserStatus = "active"
	// UserStatusDisabled accounts are administratively rejected at sign in
	UserStatusDisabled UserStatus = "disabled"
	// UserStatusArchived accounts are administratively rejected at sign in
	UserStatusArchived UserStatus = "archived"
)

// PermissionImpersonate grants the login on behalf capability
const PermissionImpersonate = "storefront:security:loginOnBehalf"

// RoleAdministrator may sign in to any store
const RoleAdministrator = "administrator"

// User is the user model
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	Username           string          `bun:"username,notnull" json:"username"`
	NormalizedUsername string          `bun:"normalized_username,notnull,unique" json:"-"`
	Email              string          `bun:"email" json:"email,omitempty"`
	NormalizedEmail    string          `bun:"normalized_email" json:"-"`
	EmailConfirmed     bool            `bun:"email_confirmed,notnull" json:"email_confirmed"`
	PhoneNumber        string          `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash       string          `bun:"password_hash" json:"-"`
	SecurityStamp      string          `bun:"security_stamp,notnull" json:"-"`
	StoreID            string          `bun:"store_id,notnull" json:"store_id"`
	FirstName          string          `bun:"first_name" json:"first_name,omitempty"`
	LastName           string          `bun:"last_name" json:"last_name,omitempty"`
	FullName           string          `bun:"full_name" json:"full_name,omitempty"`
	OrganizationID     string          `bun:"organization_id" json:"organization_id,omitempty"`
	Status             UserStatus      `bun:"status,notnull" json:"status"`
	Suspended          bool            `bun:"suspended,notnull" json:"suspended"`
	TwoFactorEnabled   bool            `bun:"two_factor_enabled,notnull" json:"two_factor_enabled"`
	AccessFailedCount  int             `bun:"access_failed_count,notnull" json:"-"`
	LockoutEnd         *time.Time      `bun:"lockout_end,nullzero" json:"lockout_end,omitempty"`
	OperatorID         string          `bun:"-" json:"operator_id,omitempty"`
	OperatorName       string          `bun:"-" json:"operator_name,omitempty"`
	Roles              []string        `bun:"roles" json:"roles,omitempty"`
	Permissions        []string        `bun:"permissions" json:"permissions,omitempty"`
	ExternalLogins     []ExternalLogin `bun:"rel:has-many,join:id=user_id" json:"external_logins,omitempty"`
	CreatedAt          *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPassword is false for invitation placeholders and
// externally provisioned accounts
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsImpersonated reports if the principal carries operator provenance.
// Operator fields come from the session and are never persisted.
func (u *User) IsImpersonated() bool {
	return u.OperatorID != ""
}

// HasRole checks role membership, case insensitive
func (u *User) HasRole(role string) bool {
	return slices.ContainsFunc(u.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

// HasPermission checks a granted permission
func (u *User) HasPermission(permission string) bool {
	return slices.Contains(u.Permissions, permission)
}

// IsLockedOut reports an active lockout window at now
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// ExternalLogin links a provider identity to a user
type ExternalLogin struct {
	bun.BaseModel `bun:"table:user_logins,alias:ulg"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Provider      string     `bun:"provider,notnull" json:"provider"`
	ProviderKey   string     `bun:"provider_key,notnull" json:"provider_key"`
	DisplayName   string     `bun:"display_name" json:"display_name,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Claim types read from external providers
const (
	ClaimEmail      = "email"
	ClaimGivenName  = "given_name"
	ClaimFamilyName = "family_name"
	ClaimName       = "name"
	ClaimNickname   = "nickname"
)

// Claim is a single provider asserted attribute
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ExternalLoginInfo is derived from a provider callback, never persisted
type ExternalLoginInfo struct {
	Provider    string
	ProviderKey string
	DisplayName string
	Claims      []Claim
}

// FindClaim returns the first non empty value for claimType
func (e ExternalLoginInfo) FindClaim(claimType string) string {
	for _, c := range e.Claims {
		if c.Type == claimType && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// FirstClaim walks claimTypes in order and returns the first match
func (e ExternalLoginInfo) FirstClaim(claimTypes ...string) string {
	for _, t := range claimTypes {
		if v := e.FindClaim(t); v != "" {
			return v
		}
	}
	return ""
}

// TokenPurpose scopes a token to exactly one action
type TokenPurpose string

const (
	PurposeEmailConfirmation  TokenPurpose = "email-confirmation"
	PurposePasswordReset      TokenPurpose = "password-reset"
	PurposePasswordResetPhone TokenPurpose = "password-reset-phone"
)

// NormalizeKey is the canonical form used for username and email lookups
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
