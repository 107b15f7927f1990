// Package orgcontext carries the organization a request acts for.
package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// GinKey is the gin context key the org middleware sets. A *gin.Context
// passed as a context.Context resolves it through Value.
const GinKey = "org_id"

type orgKey struct{}

func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, orgKey{}, orgID)
}

// OrgIDFromContext returns the organization ID, if one is set and non-zero.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	if id, ok := parse(ctx.Value(orgKey{})); ok {
		return id, true
	}
	return parse(ctx.Value(GinKey))
}

func parse(value any) (snowflake.ID, bool) {
	var id snowflake.ID
	switch typed := value.(type) {
	case snowflake.ID:
		id = typed
	case int64:
		id = snowflake.ID(typed)
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err != nil {
			return 0, false
		}
		id = parsed
	default:
		return 0, false
	}
	return id, id != 0
}
