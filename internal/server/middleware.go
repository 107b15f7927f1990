package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invoicely/internal/observability/context"
	"github.com/smallbiznis/invoicely/internal/orgcontext"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
)

const HeaderOrg = "X-Org-ID"

// OrgContext resolves the acting organization from the X-Org-ID header and
// attaches it to the request context. Requests without a valid organization
// are rejected.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		orgID, err := snowflake.ParseString(raw)
		if raw == "" || err != nil || orgID == 0 {
			AbortWithError(c, scheduledomain.ErrInvalidOrganization)
			return
		}

		c.Set(orgcontext.GinKey, orgID)
		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		ctx = obscontext.WithActor(ctx, obscontext.ActorTypeUser, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
