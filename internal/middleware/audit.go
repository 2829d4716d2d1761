package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/debatehub/backend/internal/services"
	"github.com/gin-gonic/gin"
)

const auditBodyLimit = 500

// AuditLog records write requests to system_logs. Manual reviews are audited
// by the workflow itself, so this is mounted on submission routes.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = string(bodyBytes)
			if len(bodySnippet) > auditBodyLimit {
				bodySnippet = bodySnippet[:auditBodyLimit] + "...[truncated]"
			}
			bodySnippet = maskSensitiveFields(bodySnippet)
		}

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)
		message := formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status)

		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   bodySnippet,
			"audit":  true,
		}
		if status >= 400 {
			services.LogWarning(module, action, message, GetUserID(c), c.ClientIP(), c.Request.UserAgent(), extra)
			return
		}
		services.LogInfo(module, action, message, GetUserID(c), c.ClientIP(), c.Request.UserAgent(), extra)
	}
}

// parseRouteInfo maps a route pattern to module and action.
// e.g. "/api/moderation/:id/review" + "PUT" gives module="moderation", action="review"
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/")

	parts := strings.Split(path, "/")
	module = parts[0]
	if module == "" {
		module = "unknown"
	}

	for i := len(parts) - 1; i > 0; i-- {
		if parts[i] != "" && !strings.HasPrefix(parts[i], ":") {
			return module, parts[i]
		}
	}

	switch method {
	case http.MethodPost:
		action = "create"
	case http.MethodPut:
		action = "update"
	default:
		action = strings.ToLower(method)
	}
	return module, action
}

func formatAuditMessage(username, method, path string, status int) string {
	if username == "" {
		username = "anonymous"
	}
	var b strings.Builder
	b.WriteString("[Audit] ")
	b.WriteString(username)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" -> ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed")
	}
	return b.String()
}

// maskSensitiveFields replaces sensitive values in JSON body
func maskSensitiveFields(body string) string {
	sensitiveKeys := []string{"password", "api_key", "secret", "token", "access_token"}
	lower := strings.ToLower(body)
	for _, key := range sensitiveKeys {
		if strings.Contains(lower, key) {
			body = maskJSONValue(body, key)
		}
	}
	return body
}

// maskJSONValue does a best-effort mask of the first JSON string value for key.
func maskJSONValue(body, key string) string {
	lower := strings.ToLower(body)
	idx := strings.Index(lower, "\""+key+"\"")
	if idx == -1 {
		return body
	}

	colonIdx := strings.Index(body[idx+len(key)+2:], ":")
	if colonIdx == -1 {
		return body
	}
	valueStart := idx + len(key) + 2 + colonIdx + 1

	for valueStart < len(body) && (body[valueStart] == ' ' || body[valueStart] == '\t') {
		valueStart++
	}

	if valueStart >= len(body) || body[valueStart] != '"' {
		return body
	}

	endQuote := strings.Index(body[valueStart+1:], "\"")
	if endQuote == -1 {
		return body
	}
	return body[:valueStart+1] + "***" + body[valueStart+1+endQuote:]
}
