package apperrors

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Respond writes err as a JSON error body and aborts the gin context.
// Server-class errors are logged with their cause; the client only sees the
// generic message.
func Respond(c *gin.Context, log logrus.FieldLogger, err error) {
	st := StatusOf(err)
	if st.Internal && log != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"code":   st.Code,
		}).Error("request failed")
	}
	c.AbortWithStatusJSON(st.HTTPCode, gin.H{
		"error": st.Message,
		"code":  st.Code,
	})
}
