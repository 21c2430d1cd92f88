package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondJSONWithETag writes the payload with a content-derived ETag
// and answers If-None-Match hits with 304. Used on the admin job reads,
// which dashboards poll.
func RespondJSONWithETag(ctx *gin.Context, status int, payload any) {
	etag, err := contentETag(payload)

	if err != nil {
		ctx.JSON(status, payload)
		return
	}

	ctx.Header("ETag", etag)

	if etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(status, payload)
}

func contentETag(payload any) (string, error) {
	b, err := json.Marshal(payload)

	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

func etagMatches(headerValue, current string) bool {
	headerValue = strings.TrimSpace(headerValue)

	if headerValue == "" || current == "" {
		return false
	}

	if headerValue == "*" {
		return true
	}

	want := stripWeakPrefix(current)

	for _, candidate := range strings.Split(headerValue, ",") {
		if stripWeakPrefix(candidate) == want {
			return true
		}
	}

	return false
}

// RFC 9110 allows weak validators like W/"abc".
func stripWeakPrefix(raw string) string {
	v := strings.TrimSpace(raw)

	if strings.HasPrefix(v, "W/") {
		v = strings.TrimSpace(strings.TrimPrefix(v, "W/"))
	}

	return v
}
