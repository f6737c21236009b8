// Package types defines the core types shared across the user registry.
package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Origin identifies which source a record was served from. It is derived
// at read time and never persisted.
type Origin string

const (
	// OriginRemote marks a record served from the authoritative catalog.
	OriginRemote Origin = "remote"
	// OriginLocal marks a record served from the local overlay store.
	OriginLocal Origin = "local"
)

// Role represents the role carried by an API client.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

// IsValid checks whether the role is one of the defined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleViewer, RoleEditor:
		return true
	}
	return false
}

// CanWrite reports whether the role permits mutating operations
func (r Role) CanWrite() bool {
	return r == RoleEditor
}

// Address represents the address block of a user record
type Address struct {
	Street string            `json:"street"`
	Suite  string            `json:"suite"`
	City   string            `json:"city"`
	Geo    map[string]string `json:"geo,omitempty"`
}

// Company represents the company block of a user record
type Company struct {
	Name        string `json:"name"`
	CatchPhrase string `json:"catchPhrase"`
	BS          string `json:"bs"`
}

// User represents a single user record in the merged registry view. The ID
// is unique across both sources and immutable once assigned; every other
// field is descriptive payload the reconciliation rules never inspect.
type User struct {
	ID       uint64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	Website  string  `json:"website"`
	Address  Address `json:"address" gorm:"serializer:json"`
	Company  Company `json:"company" gorm:"serializer:json"`

	// Origin is stamped by the registry when the record is read, not stored.
	Origin Origin `json:"origin,omitempty" gorm:"-"`
}

// UserPatch carries the mutable fields of a user record. Nil fields are
// left untouched; present fields replace the stored value wholesale.
type UserPatch struct {
	Name     *string  `json:"name,omitempty"`
	Username *string  `json:"username,omitempty"`
	Email    *string  `json:"email,omitempty"`
	Phone    *string  `json:"phone,omitempty"`
	Website  *string  `json:"website,omitempty"`
	Address  *Address `json:"address,omitempty"`
	Company  *Company `json:"company,omitempty"`
}

// Apply merges the patch onto a copy of the given record and returns the
// result. The record's ID is never touched.
func (p UserPatch) Apply(user User) User {
	if p.Name != nil {
		user.Name = *p.Name
	}
	if p.Username != nil {
		user.Username = *p.Username
	}
	if p.Email != nil {
		user.Email = *p.Email
	}
	if p.Phone != nil {
		user.Phone = *p.Phone
	}
	if p.Website != nil {
		user.Website = *p.Website
	}
	if p.Address != nil {
		user.Address = *p.Address
	}
	if p.Company != nil {
		user.Company = *p.Company
	}
	return user
}

// IsEmpty reports whether the patch carries no fields at all
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil && p.Username == nil && p.Email == nil &&
		p.Phone == nil && p.Website == nil && p.Address == nil && p.Company == nil
}

// Audit actions recorded for mutating operations
const (
	AuditActionCreate = "user.create"
	AuditActionUpdate = "user.update"
)

// AuditEntry represents one recorded mutating operation against the overlay
type AuditEntry struct {
	EntryID   string    `json:"entry_id" gorm:"primaryKey;type:varchar(36)"`
	Action    string    `json:"action" gorm:"not null"`
	UserID    uint64    `json:"user_id"`
	ClientID  string    `json:"client_id,omitempty"`
	Detail    string    `json:"detail,omitempty" gorm:"type:text"`
	Success   bool      `json:"success" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

// Error types for better error handling
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// Context keys for request context
type ContextKey string

const (
	ContextKeyClientID  ContextKey = "client_id"
	ContextKeyRole      ContextKey = "role"
	ContextKeyRequestID ContextKey = "request_id"
)

// RequestContext holds request-specific context information
type RequestContext struct {
	ClientID  string
	Role      string
	RequestID string
}

// GetRequestContext extracts request context from Go context
func GetRequestContext(ctx context.Context) *RequestContext {
	return &RequestContext{
		ClientID:  getStringFromContext(ctx, ContextKeyClientID),
		Role:      getStringFromContext(ctx, ContextKeyRole),
		RequestID: getStringFromContext(ctx, ContextKeyRequestID),
	}
}

// helper function to extract string from context
func getStringFromContext(ctx context.Context, key ContextKey) string {
	if value := ctx.Value(key); value != nil {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}

// NewRequestContext creates a new request context with a generated request ID
func NewRequestContext(clientID, role string) *RequestContext {
	return &RequestContext{
		ClientID:  clientID,
		Role:      role,
		RequestID: uuid.New().String(),
	}
}
