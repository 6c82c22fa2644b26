package httpgin

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/classbook/internal/domain"
)

const offeringCacheControl = "public, max-age=5"

// offeringETag versions an offering by the fields a seat change touches.
// Occupancy is part of it so stores that do not bump updated_at on every
// counter write still produce a new tag.
func offeringETag(o *domain.Offering) string {
	return fmt.Sprintf(`W/"o%d-%d-%d-%d"`, o.ID, o.Capacity, o.Occupancy, o.UpdatedAt.UnixNano())
}

// writeOffering answers a conditional offering read. A request whose
// If-None-Match lists the current tag, or "*", gets 304 with no body.
func writeOffering(c *gin.Context, o *domain.Offering) {
	tag := offeringETag(o)
	c.Header("ETag", tag)
	c.Header("Cache-Control", offeringCacheControl)

	if !o.UpdatedAt.IsZero() {
		c.Header("Last-Modified", o.UpdatedAt.UTC().Format(http.TimeFormat))
	}

	if etagMatches(c.GetHeader("If-None-Match"), tag) {
		c.Status(http.StatusNotModified)
		return
	}

	c.JSON(http.StatusOK, o)
}

// etagMatches applies the weak comparison used for If-None-Match.
func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}

	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}

	return false
}
