package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const OperatorKeyHeader = "X-Operator-Key"

// OperatorRequired gates the operator console. An empty key locks it.
func OperatorRequired(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(OperatorKeyHeader)
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Operator credential required", "error_kind": "unauthenticated"})
			return
		}
		c.Next()
	}
}
