package handler // handler defines http handlers

import (
    "errors" // errors provides sentinel values used in getUserID

    "github.com/labstack/echo/v4" // echo defines request context types

    "github.com/iliyamo/shareables/internal/middleware" // context keys set by JWTAuth
    "github.com/iliyamo/shareables/internal/model"
    "github.com/iliyamo/shareables/internal/service"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID extracts the user id stored by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
    if id, ok := c.Get(middleware.CtxUserID).(uint64); ok && id != 0 {
        return id, nil
    }
    return 0, errNoUser
}

// requester builds the manager's view of the authenticated caller.
func requester(c echo.Context) (service.Requester, error) {
    id, err := getUserID(c)
    if err != nil {
        return service.Requester{}, err
    }
    role, _ := c.Get(middleware.CtxRole).(string)
    name, _ := c.Get(middleware.CtxName).(string)
    return service.Requester{UserID: id, Name: name, Admin: role == model.RoleAdmin}, nil
}
