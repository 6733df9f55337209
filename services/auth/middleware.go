package auth

import (
	"github.com/gin-gonic/gin"

	"licensing-controlplane/pkg/errutil"
)

const bearerContextKey = "auth.bearer"

// Middleware classifies and authenticates the request's credential and
// stores the resolved bearer on the gin context. Requests without a
// credential pass through as anonymous; per-route guards decide what the
// anonymous bearer may do.
func Middleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, err := Classify(c.Request)
		if err != nil {
			abort(c, err)
			return
		}

		bearer, err := svc.Authenticate(c.Request.Context(), c.Param("account_id"), cred)
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(bearerContextKey, bearer)
		c.Next()
	}
}

// RequireBearer rejects anonymous requests.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if BearerFrom(c).Type == BearerAnonymous {
			abort(c, ErrTokenInvalid)
			return
		}
		c.Next()
	}
}

// BearerFrom returns the request's resolved bearer, anonymous when the
// middleware never ran.
func BearerFrom(c *gin.Context) *Bearer {
	if v, ok := c.Get(bearerContextKey); ok {
		if b, ok := v.(*Bearer); ok {
			return b
		}
	}
	return anonymous()
}

func abort(c *gin.Context, err error) {
	status, body := errutil.HTTPBody(err)
	c.AbortWithStatusJSON(status, body)
}
