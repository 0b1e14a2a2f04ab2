package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func parseSchema(t *testing.T, model interface{}) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	return s
}

func TestEnquiryOwner_ClearedWhenUserDeleted(t *testing.T) {
	rel, ok := parseSchema(t, &Enquiry{}).Relationships.Relations["User"]
	require.True(t, ok)
	constraint := rel.ParseConstraint()
	require.NotNil(t, constraint)
	assert.Equal(t, "SET NULL", constraint.OnDelete)
}

func TestUserOwnedRows_CascadeOnDelete(t *testing.T) {
	user := parseSchema(t, &User{})
	for _, name := range []string{"Tokens", "Cart", "Addresses", "RecentlyViewed"} {
		rel, ok := user.Relationships.Relations[name]
		require.True(t, ok, name)
		constraint := rel.ParseConstraint()
		require.NotNil(t, constraint, name)
		assert.Equal(t, "CASCADE", constraint.OnDelete, name)
	}
}

func TestEnquiryStatus_Valid(t *testing.T) {
	assert.True(t, EnquiryContacted.Valid())
	assert.False(t, EnquiryStatus("shipped").Valid())
}
