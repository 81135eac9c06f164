package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lost-woods/entropyd/src/rng"
)

// ReadBytes serves GET /bytes?num_bytes=N[&timeout_ms=T].
//
// Without timeout_ms the call blocks until every source delivered N bytes
// or failed. Both ok and partial results are 200; callers must branch on the
// status field. A result with status error is 503.
func (h *Handlers) ReadBytes(c *gin.Context) {
	num, err := strconv.ParseUint(c.Query("num_bytes"), 10, 64)
	if err != nil {
		responder{c}.err(http.StatusBadRequest, "num_bytes must be an unsigned integer.")
		return
	}

	var timeout time.Duration
	if v, ok := c.GetQuery("timeout_ms"); ok {
		ms, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			responder{c}.err(http.StatusBadRequest, "timeout_ms must be an unsigned integer.")
			return
		}
		timeout = rng.Milliseconds(ms)
	}

	res := h.gw.Read(c.Request.Context(), num, timeout)

	code := http.StatusOK
	payload := gin.H{
		"status":    uint32(res.Status),
		"result":    res.Status.String(),
		"num_bytes": num,
		"length":    len(res.Bytes),
		"bytes":     hex.EncodeToString(res.Bytes),
	}
	text := fmt.Sprintf("%d %x", uint32(res.Status), res.Bytes)

	if res.Status == rng.StatusError {
		code = http.StatusServiceUnavailable
		if rng.Code(res.Err) == rng.CodeInvalidRequest {
			code = http.StatusBadRequest
		}
		payload["error"] = res.Err.Error()
		payload["code"] = rng.Code(res.Err)
		h.log.Warnw("entropy request failed", "num_bytes", num, "error", res.Err)
	}

	responder{c}.send(code, text, payload)
}

func (h *Handlers) Health(c *gin.Context) {
	if h.health == nil {
		responder{c}.err(http.StatusServiceUnavailable, "UNHEALTHY: missing health monitor")
		return
	}

	var set *rng.SourceSet
	if agg := h.gw.Aggregator(); agg != nil {
		set = agg.Set()
	}
	rng.CheckSources(set, h.health)

	ok, msg, t := h.health.Snapshot()
	payload := gin.H{
		"ok":           ok,
		"last_checked": t.Format(time.RFC3339),
		"sources":      h.health.Sources(),
	}
	if ok {
		responder{c}.ok(fmt.Sprintf("OK (last checked %s)", t.Format(time.RFC3339)), payload)
		return
	}

	payload["error"] = msg
	responder{c}.send(http.StatusServiceUnavailable,
		fmt.Sprintf("UNHEALTHY: %s (last checked %s)", msg, t.Format(time.RFC3339)), payload)
}
