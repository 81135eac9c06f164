package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type responder struct{ c *gin.Context }

func (r responder) wantsJSON() bool {
	accept := strings.ToLower(r.c.GetHeader("Accept"))
	return strings.Contains(accept, "application/json")
}

func (r responder) err(status int, msg string) {
	if r.wantsJSON() {
		r.c.JSON(status, gin.H{"error": msg})
		return
	}
	r.c.String(status, msg)
}

func (r responder) ok(text string, payload gin.H) {
	r.send(http.StatusOK, text, payload)
}

func (r responder) send(status int, text string, payload gin.H) {
	if r.wantsJSON() {
		r.c.JSON(status, payload)
		return
	}
	r.c.String(status, text)
}
