// README: Firebase bearer-token auth middleware and caller accessors.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridepool/internal/infra"
)

const (
	ctxCallerUID    = "caller_uid"
	ctxCallerGender = "caller_gender"

	// Headers trusted by DevAuth when no token verifier is configured.
	DevUserHeader   = "X-User-ID"
	DevGenderHeader = "X-User-Gender"
)

// Auth verifies the Firebase ID token in the Authorization header and stores
// the caller's uid and gender claim on the context. Browsers cannot set
// headers on websocket upgrades, so an access_token query parameter is also read.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxCallerGender, stringClaim(token.Claims, "gender"))
		c.Next()
	}
}

// DevAuth trusts identity headers. Only for local runs without Firebase.
func DevAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(DevUserHeader)
		if uid == "" {
			uid = c.Query("user_id")
		}
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + DevUserHeader})
			return
		}
		c.Set(ctxCallerUID, uid)
		c.Set(ctxCallerGender, c.GetHeader(DevGenderHeader))
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

// CallerGender is empty when the token carries no gender claim.
func CallerGender(c *gin.Context) string {
	return c.GetString(ctxCallerGender)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return c.Query("access_token")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func stringClaim(claims map[string]interface{}, key string) string {
	v, _ := claims[key].(string)
	return v
}
