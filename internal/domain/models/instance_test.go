package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsguard/companion-service/internal/domain/models"
)

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://dns.home.lan", models.NormalizeBaseURL("https://dns.home.lan/"))
	assert.Equal(t, "https://dns.home.lan", models.NormalizeBaseURL("  https://dns.home.lan///  "))
	assert.Equal(t, "https://dns.home.lan", models.NormalizeBaseURL("https://dns.home.lan"))
	assert.Empty(t, models.NormalizeBaseURL("   "))
}

func TestInstance_DisplayName(t *testing.T) {
	named := models.Instance{Name: "Home", BaseURL: "https://dns.home.lan"}
	assert.Equal(t, "Home", named.DisplayName())

	unnamed := models.Instance{BaseURL: "https://dns.home.lan:8443"}
	assert.Equal(t, "dns.home.lan:8443", unnamed.DisplayName())
}

func TestCollection_RemoveActiveFallsBack(t *testing.T) {
	// Arrange
	collection := models.NewInstanceCollection()
	collection.Instances = []models.Instance{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	active := "b"
	collection.ActiveInstanceID = &active

	// Act
	removed := collection.Remove("b")

	// Assert
	assert.True(t, removed)
	require.NotNil(t, collection.ActiveInstanceID)
	assert.Equal(t, "a", *collection.ActiveInstanceID)
	assert.Len(t, collection.Instances, 2)
}

func TestCollection_RemoveLastClearsActive(t *testing.T) {
	// Arrange
	collection := models.NewInstanceCollection()
	collection.Instances = []models.Instance{{ID: "a"}}
	active := "a"
	collection.ActiveInstanceID = &active

	// Act
	removed := collection.Remove("a")

	// Assert
	assert.True(t, removed)
	assert.Nil(t, collection.ActiveInstanceID)
}

func TestCollection_RemoveInactiveKeepsActive(t *testing.T) {
	// Arrange
	collection := models.NewInstanceCollection()
	collection.Instances = []models.Instance{{ID: "a"}, {ID: "b"}}
	active := "a"
	collection.ActiveInstanceID = &active

	// Act
	removed := collection.Remove("b")

	// Assert
	assert.True(t, removed)
	require.NotNil(t, collection.ActiveInstanceID)
	assert.Equal(t, "a", *collection.ActiveInstanceID)
}

func TestCollection_RemoveUnknown(t *testing.T) {
	collection := models.NewInstanceCollection()
	assert.False(t, collection.Remove("missing"))
}

func TestCollection_CopyIsDeep(t *testing.T) {
	// Arrange
	collection := models.NewInstanceCollection()
	collection.Instances = []models.Instance{{ID: "a", Name: "original"}}
	active := "a"
	collection.ActiveInstanceID = &active

	// Act
	copied := collection.Copy()
	copied.Instances[0].Name = "mutated"
	*copied.ActiveInstanceID = "other"

	// Assert
	assert.Equal(t, "original", collection.Instances[0].Name)
	assert.Equal(t, "a", *collection.ActiveInstanceID)
}

func TestSession_Valid(t *testing.T) {
	var nilSession *models.Session
	assert.False(t, nilSession.Valid())

	expired := &models.Session{SID: "s", ExpiresAt: time.Now().Add(-time.Second)}
	assert.False(t, expired.Valid())

	missingSID := &models.Session{ExpiresAt: time.Now().Add(time.Minute)}
	assert.False(t, missingSID.Valid())

	live := &models.Session{SID: "s", ExpiresAt: time.Now().Add(time.Minute)}
	assert.True(t, live.Valid())
}
