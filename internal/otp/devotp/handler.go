package devotp

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes GET /dev/otp?claimId=...&purpose=... for local development.
// The route is only mounted when dev OTP mode is enabled; never in production.
func Handler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimID := c.Query("claimId")
		purpose := c.DefaultQuery("purpose", "approval")
		if claimID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "claimId is required"})
			return
		}
		code, ok := store.Get(c.Request.Context(), claimID, purpose)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no live code for claim/purpose"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"claimId": claimID, "purpose": purpose, "otp": code})
	}
}
