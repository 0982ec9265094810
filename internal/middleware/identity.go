package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// userKey returns the id JWTAuth stored in the context, or "" for
// anonymous requests.
func userKey(c echo.Context) string {
    if id, ok := c.Get(CtxUserID).(uint64); ok && id != 0 {
        return strconv.FormatUint(id, 10)
    }
    return ""
}
