// Package models defines the domain entities shared across services.
package models

import (
	"net/url"
	"strings"
	"time"
)

// Instance is a configured connection profile for one appliance.
// EncryptedMasterKey is non-empty only while RememberPassword is true;
// toggling RememberPassword off always clears it.
type Instance struct {
	ID                 string    `json:"id" bson:"id"`
	Name               string    `json:"name,omitempty" bson:"name,omitempty"`
	BaseURL            string    `json:"baseUrl" bson:"baseUrl"`
	EncryptedPassword  string    `json:"encryptedPassword,omitempty" bson:"encryptedPassword,omitempty"`
	EncryptedMasterKey string    `json:"encryptedMasterKey,omitempty" bson:"encryptedMasterKey,omitempty"`
	RememberPassword   bool      `json:"rememberPassword" bson:"rememberPassword"`
	CreatedAt          time.Time `json:"createdAt" bson:"createdAt"`
}

// DisplayName returns the configured label, falling back to the URL
// host when no name was set.
func (i Instance) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	if u, err := url.Parse(i.BaseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return i.BaseURL
}

// Copy returns a defensive copy of the instance. Store callers always
// receive copies, never aliases into the cached collection.
func (i Instance) Copy() Instance {
	return i
}

// NormalizeBaseURL strips trailing slashes and surrounding whitespace
// from an appliance URL.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// GlobalSettings holds extension-wide preferences stored alongside the
// instance list.
type GlobalSettings struct {
	NotificationsEnabled bool `json:"notificationsEnabled" bson:"notificationsEnabled"`
	RefreshIntervalSecs  int  `json:"refreshIntervalSecs" bson:"refreshIntervalSecs"`
}

// DefaultGlobalSettings returns the settings used for a fresh install.
func DefaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		NotificationsEnabled: true,
		RefreshIntervalSecs:  60,
	}
}

// InstanceCollection is the single persisted configuration document:
// the ordered instance list, the active selection and global settings.
// A nil ActiveInstanceID denotes the aggregate "all instances" view.
type InstanceCollection struct {
	Instances        []Instance     `json:"instances" bson:"instances"`
	ActiveInstanceID *string        `json:"activeInstanceId" bson:"activeInstanceId"`
	Settings         GlobalSettings `json:"settings" bson:"settings"`
}

// NewInstanceCollection returns the empty default collection.
func NewInstanceCollection() *InstanceCollection {
	return &InstanceCollection{
		Instances: []Instance{},
		Settings:  DefaultGlobalSettings(),
	}
}

// Find returns a pointer to the instance with the given id, or nil.
func (c *InstanceCollection) Find(id string) *Instance {
	for idx := range c.Instances {
		if c.Instances[idx].ID == id {
			return &c.Instances[idx]
		}
	}
	return nil
}

// Remove deletes the instance with the given id and reassigns the
// active selection: first remaining instance, or nil when none remain.
// Returns false when the id is unknown.
func (c *InstanceCollection) Remove(id string) bool {
	idx := -1
	for i := range c.Instances {
		if c.Instances[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	c.Instances = append(c.Instances[:idx], c.Instances[idx+1:]...)

	if c.ActiveInstanceID != nil && *c.ActiveInstanceID == id {
		if len(c.Instances) > 0 {
			first := c.Instances[0].ID
			c.ActiveInstanceID = &first
		} else {
			c.ActiveInstanceID = nil
		}
	}
	return true
}

// Copy returns a deep copy of the collection.
func (c *InstanceCollection) Copy() *InstanceCollection {
	out := &InstanceCollection{
		Instances: make([]Instance, len(c.Instances)),
		Settings:  c.Settings,
	}
	copy(out.Instances, c.Instances)
	if c.ActiveInstanceID != nil {
		id := *c.ActiveInstanceID
		out.ActiveInstanceID = &id
	}
	return out
}
