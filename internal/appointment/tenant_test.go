package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTenantID(t *testing.T) {
	tenant, err := NewTenantID("clinic-a")
	require.NoError(t, err)
	assert.Equal(t, "clinic-a", tenant.String())
	assert.False(t, tenant.IsZero())

	_, err = NewTenantID("")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.True(t, TenantID{}.IsZero())
}
