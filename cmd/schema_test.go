package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/soil-etl/internal/schema"
)

func TestRenderSchema(t *testing.T) {
	out, err := renderSchema("sqlite")
	require.NoError(t, err)
	assert.Equal(t, schema.DDL(), out)

	out, err = renderSchema("")
	require.NoError(t, err)
	assert.Equal(t, schema.DDL(), out)

	out, err = renderSchema("postgres")
	require.NoError(t, err)
	assert.Contains(t, out, "orgc_profile_layer")
	assert.Contains(t, out, "BIGINT")
	assert.Contains(t, out, "DOUBLE PRECISION")
}

func TestRenderSchema_UnknownDialect(t *testing.T) {
	_, err := renderSchema("oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dialect")
}
