package api

import (
	"github.com/overlaykit/userdir/pkg/metrics"
	"github.com/overlaykit/userdir/pkg/types"
)

// TokenRequest carries client credentials for token issuance.
type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        string `json:"role"`
}

// AddressRequest mirrors the nested address shape of a directory record.
type AddressRequest struct {
	Street string            `json:"street"`
	Suite  string            `json:"suite"`
	City   string            `json:"city"`
	Geo    map[string]string `json:"geo,omitempty"`
}

// CompanyRequest mirrors the nested company shape of a directory record.
type CompanyRequest struct {
	Name        string `json:"name"`
	CatchPhrase string `json:"catchPhrase"`
	BS          string `json:"bs"`
}

// CreateUserRequest is the payload for POST /users.
//
// ID is decoded only so a client-supplied identifier can be rejected
// explicitly: the service allocates identifiers itself.
type CreateUserRequest struct {
	ID       uint64          `json:"id"`
	Name     string          `json:"name" binding:"required"`
	Username string          `json:"username" binding:"required"`
	Email    string          `json:"email" binding:"required,email"`
	Phone    string          `json:"phone"`
	Website  string          `json:"website"`
	Address  *AddressRequest `json:"address"`
	Company  *CompanyRequest `json:"company"`
}

// ToUser converts the request into a directory record. The ID field is
// deliberately not carried over.
func (r *CreateUserRequest) ToUser() types.User {
	user := types.User{
		Name:     r.Name,
		Username: r.Username,
		Email:    r.Email,
		Phone:    r.Phone,
		Website:  r.Website,
	}
	if r.Address != nil {
		user.Address = types.Address{
			Street: r.Address.Street,
			Suite:  r.Address.Suite,
			City:   r.Address.City,
			Geo:    r.Address.Geo,
		}
	}
	if r.Company != nil {
		user.Company = types.Company{
			Name:        r.Company.Name,
			CatchPhrase: r.Company.CatchPhrase,
			BS:          r.Company.BS,
		}
	}
	return user
}

// UpdateUserRequest is the payload for PATCH /users/:id. Absent fields are
// left untouched; present fields replace the stored value wholesale.
type UpdateUserRequest struct {
	Name     *string         `json:"name,omitempty"`
	Username *string         `json:"username,omitempty"`
	Email    *string         `json:"email,omitempty" binding:"omitempty,email"`
	Phone    *string         `json:"phone,omitempty"`
	Website  *string         `json:"website,omitempty"`
	Address  *AddressRequest `json:"address,omitempty"`
	Company  *CompanyRequest `json:"company,omitempty"`
}

// ToPatch converts the request into a field-replacement patch.
func (r *UpdateUserRequest) ToPatch() types.UserPatch {
	patch := types.UserPatch{
		Name:     r.Name,
		Username: r.Username,
		Email:    r.Email,
		Phone:    r.Phone,
		Website:  r.Website,
	}
	if r.Address != nil {
		patch.Address = &types.Address{
			Street: r.Address.Street,
			Suite:  r.Address.Suite,
			City:   r.Address.City,
			Geo:    r.Address.Geo,
		}
	}
	if r.Company != nil {
		patch.Company = &types.Company{
			Name:        r.Company.Name,
			CatchPhrase: r.Company.CatchPhrase,
			BS:          r.Company.BS,
		}
	}
	return patch
}

// BaseResponse represents the base structure for all API responses.
type BaseResponse[T any] struct {
	Code    int    `json:"code" example:"200"`
	Message string `json:"message" example:"Operation successful"`
	Data    *T     `json:"data,omitempty"`
}

// UserResponse wraps a single directory record.
type UserResponse = BaseResponse[types.User]

// UserListResponse wraps the merged directory listing.
type UserListResponse = BaseResponse[[]types.User]

// ErrorResponse represents a failed request.
type ErrorResponse struct {
	Code    int    `json:"code" example:"400"`
	Message string `json:"message" example:"Invalid request"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse reports liveness and dependency status.
type HealthResponse struct {
	Status    string            `json:"status" example:"healthy"`
	Timestamp string            `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Version   string            `json:"version" example:"1.0.0"`
	Uptime    string            `json:"uptime" example:"1h30m"`
	Checks    map[string]string `json:"checks"`
}

// MetricsResponse reports the in-process instrumentation snapshot. Metrics
// is absent when instrumentation is disabled.
type MetricsResponse struct {
	Enabled   bool              `json:"enabled"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Metrics   *metrics.Snapshot `json:"metrics,omitempty"`
}
