package middleware

import (
	"licensing-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error recorded on the gin context as a JSON
// response with the domain error's status and stable code.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		status, body := errutil.HTTPBody(err.Err)
		c.JSON(status, body)
	}
}
