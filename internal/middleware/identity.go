package middleware

// identity.go holds the helpers that read the caller's identity from the
// Echo context after JWTAuth ran.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// UserID returns the authenticated user's id.  The "sub" claim arrives as
// a JSON number (float64) from tokens minted by utils.NewAccessToken, but
// string and integer forms are accepted too.
func UserID(c echo.Context) (uint64, bool) {
	switch t := c.Get(ContextUserID).(type) {
	case uint64:
		return t, t > 0
	case int:
		return uint64(t), t > 0
	case int64:
		return uint64(t), t > 0
	case float64:
		return uint64(t), t >= 1
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// userKey is the rate limiter's view of the caller: the user id or "anon".
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
