package dto

import (
	"time"

	"github.com/dnsguard/companion-service/internal/domain/models"
)

// InstanceResponse represents an instance in API responses. Encrypted
// secret material never leaves the service.
type InstanceResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	BaseURL          string    `json:"baseUrl"`
	RememberPassword bool      `json:"rememberPassword"`
	HasPassword      bool      `json:"hasPassword"`
	Authenticated    bool      `json:"authenticated"`
	CreatedAt        time.Time `json:"createdAt"`
}

// NewInstanceResponse converts a domain instance, stripping secrets.
func NewInstanceResponse(instance *models.Instance, authenticated bool) InstanceResponse {
	return InstanceResponse{
		ID:               instance.ID,
		Name:             instance.DisplayName(),
		BaseURL:          instance.BaseURL,
		RememberPassword: instance.RememberPassword,
		HasPassword:      instance.EncryptedPassword != "",
		Authenticated:    authenticated,
		CreatedAt:        instance.CreatedAt,
	}
}

// ListInstancesResponse represents the whole collection.
type ListInstancesResponse struct {
	Instances        []InstanceResponse    `json:"instances"`
	ActiveInstanceID *string               `json:"activeInstanceId"`
	Settings         models.GlobalSettings `json:"settings"`
}

// AuthenticateResponse reports the outcome of an authentication call.
type AuthenticateResponse struct {
	Authenticated bool `json:"authenticated"`
	TotpRequired  bool `json:"totpRequired"`
}

// ConnectionTestResponse reports reachability of an appliance URL.
type ConnectionTestResponse struct {
	Reachable bool   `json:"reachable"`
	Key       string `json:"key,omitempty"`
	Message   string `json:"message,omitempty"`
	Hint      string `json:"hint,omitempty"`
}
