package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
)

const companyHeader = "X-Company-ID"

// tenantMiddleware resolves the tenant from the X-Company-ID header and
// stamps the request context with the tenant, a request id and a scoped
// logger. The gateway authenticates upstream; a missing header means the
// request bypassed it.
func (s *Server) tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.GetHeader(companyHeader)
		if companyID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + companyHeader + " header"})
			return
		}
		if s.companyID != "" && companyID != s.companyID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "company not served by this instance"})
			return
		}

		requestID := uuid.NewString()
		reqLogger := s.logger.With(
			zap.String("company_id", companyID),
			zap.String("request_id", requestID),
			zap.String("path", c.FullPath()),
		)

		ctx := tenant.WithCompanyID(c.Request.Context(), companyID)
		ctx = tenant.WithRequestID(ctx, requestID)
		ctx = logger.WithLogger(ctx, reqLogger)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
