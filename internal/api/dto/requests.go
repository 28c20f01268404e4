// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// AddInstanceRequest represents the request body for registering an instance.
type AddInstanceRequest struct {
	Name             string `json:"name" binding:"max=120"`
	BaseURL          string `json:"baseUrl" binding:"required,max=2048"`
	Password         string `json:"password"`
	RememberPassword bool   `json:"rememberPassword"`
}

// UpdateInstanceRequest represents a partial instance update. Absent
// fields are left untouched.
type UpdateInstanceRequest struct {
	Name             *string `json:"name" binding:"omitempty,max=120"`
	BaseURL          *string `json:"baseUrl" binding:"omitempty,max=2048"`
	Password         *string `json:"password"`
	RememberPassword *bool   `json:"rememberPassword"`
}

// SetActiveRequest selects the active instance. A null ID selects the
// aggregate view.
type SetActiveRequest struct {
	InstanceID *string `json:"instanceId"`
}

// UpdateSettingsRequest replaces the global settings.
type UpdateSettingsRequest struct {
	NotificationsEnabled bool `json:"notificationsEnabled"`
	RefreshIntervalSecs  int  `json:"refreshIntervalSecs" binding:"omitempty,min=5,max=3600"`
}

// AuthenticateRequest represents the request body for authenticating an
// instance. Password is optional; when omitted the stored password is
// used.
type AuthenticateRequest struct {
	Password string `json:"password"`
	Totp     string `json:"totp"`
}

// SetBlockingRequest toggles DNS blocking, optionally on a countdown
// timer in seconds.
type SetBlockingRequest struct {
	Blocking bool     `json:"blocking"`
	Timer    *float64 `json:"timer" binding:"omitempty,gt=0"`
}

// DomainRequest represents the request body for adding a list entry.
type DomainRequest struct {
	Domain  string `json:"domain" binding:"required,max=2048"`
	Comment string `json:"comment" binding:"max=512"`
}

// RawRequest proxies an arbitrary API call to the appliance.
type RawRequest struct {
	Method string      `json:"method" binding:"required,oneof=GET POST PUT PATCH DELETE"`
	Path   string      `json:"path" binding:"required,startswith=/api/"`
	Body   interface{} `json:"body"`
}
