package orgcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

type ginLike struct {
	context.Context
	keys map[string]any
}

func (g ginLike) Value(key any) any {
	if k, ok := key.(string); ok {
		return g.keys[k]
	}
	return g.Context.Value(key)
}

func TestOrgIDFromContext(t *testing.T) {
	id, ok := OrgIDFromContext(WithOrgID(context.Background(), 42))
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	_, ok = OrgIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = OrgIDFromContext(WithOrgID(context.Background(), 0))
	assert.False(t, ok)

	id, ok = OrgIDFromContext(ginLike{Context: context.Background(), keys: map[string]any{GinKey: " 77 "}})
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(77), id)

	_, ok = OrgIDFromContext(ginLike{Context: context.Background(), keys: map[string]any{GinKey: "acme"}})
	assert.False(t, ok)
}
