package handler

import (
    "context"
    "errors"
    "log"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/shareables/internal/model"
    q "github.com/iliyamo/shareables/internal/queue"
    "github.com/iliyamo/shareables/internal/repository"
    "github.com/iliyamo/shareables/internal/service"
)

// ShareableStore is the subset of repository.ShareableRepo used here.
type ShareableStore interface {
    Create(ctx context.Context, s *model.Shareable) error
    GetByUUID(ctx context.Context, id string) (model.Shareable, error)
    List(ctx context.Context) ([]model.Shareable, error)
    Delete(ctx context.Context, id string) error
}

// Reserver is the subset of service.Manager used here.
type Reserver interface {
    Reserve(ctx context.Context, who service.Requester, req service.ReserveRequest) (model.Reservation, error)
    Cancel(ctx context.Context, who service.Requester, shareableUUID string, id uint64) error
}

// ObjectPublisher announces created objects.
type ObjectPublisher interface {
    PublishObjectCreated(ctx context.Context, ev q.ObjectCreatedEvent) error
}

// ShareableHandler exposes shareables and their reservations over HTTP.
// Reservation requests go through the same manager as queue events.
type ShareableHandler struct {
    Store     ShareableStore
    Manager   Reserver
    Publisher ObjectPublisher
    Cache     service.Purger // optional
}

// NewShareableHandler panics if store, manager or publisher is nil.
func NewShareableHandler(store ShareableStore, manager Reserver, publisher ObjectPublisher, cache service.Purger) *ShareableHandler {
    if store == nil || manager == nil || publisher == nil {
        panic("nil dependency passed to NewShareableHandler")
    }
    return &ShareableHandler{Store: store, Manager: manager, Publisher: publisher, Cache: cache}
}

type createShareableReq struct {
    Name        string `json:"name"`
    Description string `json:"description"`
}

type reserveReq struct {
    From        time.Time `json:"from"`
    To          time.Time `json:"to"`
    Title       *string   `json:"title"`
    Description *string   `json:"description"`
}

type reserveResp struct {
    q.Response
    Reservation *model.Reservation  `json:"reservation,omitempty"`
    Conflicts   []model.Reservation `json:"conflicts,omitempty"`
    Error       string              `json:"error,omitempty"`
}

// shareableUUID validates the :uuid path parameter.
func shareableUUID(c echo.Context) (string, bool) {
    id, err := uuid.Parse(c.Param("uuid"))
    if err != nil {
        return "", false
    }
    return id.String(), true
}

// List handles GET /v1/shareables.
func (h *ShareableHandler) List(c echo.Context) error {
    items, err := h.Store.List(c.Request().Context())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/shareables/:uuid and includes every reservation.
func (h *ShareableHandler) Get(c echo.Context) error {
    id, ok := shareableUUID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid shareable uuid"})
    }
    s, err := h.Store.GetByUUID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "shareable not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, s)
}

// Create handles POST /v1/shareables (admins only).  The creation is
// announced on the object queue; a failed announcement does not fail the
// request.
func (h *ShareableHandler) Create(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body createShareableReq
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    body.Name = strings.TrimSpace(body.Name)
    if body.Name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
    }
    s := &model.Shareable{Name: body.Name, Description: strings.TrimSpace(body.Description), CreatedBy: uid}
    ctx := c.Request().Context()
    if err := h.Store.Create(ctx, s); err != nil {
        if errors.Is(err, repository.ErrConflict) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "shareable already exists"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create shareable"})
    }
    if err := h.Publisher.PublishObjectCreated(ctx, q.ObjectCreatedEvent{Schema: q.SchemaShareable, UUID: s.UUID}); err != nil {
        log.Printf("shareables: announce %s failed: %v", s.UUID, err)
    }
    return c.JSON(http.StatusCreated, s)
}

// Delete handles DELETE /v1/shareables/:uuid (admins only).
func (h *ShareableHandler) Delete(c echo.Context) error {
    id, ok := shareableUUID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid shareable uuid"})
    }
    if err := h.Store.Delete(c.Request().Context(), id); err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "shareable not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete shareable"})
    }
    if h.Cache != nil {
        if err := h.Cache.Purge(c.Request().Context()); err != nil {
            log.Printf("shareables: purge cache after deleting %s: %v", id, err)
        }
    }
    return c.NoContent(http.StatusNoContent)
}

// Reserve handles POST /v1/shareables/:uuid/reserve.  The body carries
// "from" and "to" (RFC 3339) plus optional "title" and "description".
// 201 on success; 409 with data=false when the window is taken.
func (h *ShareableHandler) Reserve(c echo.Context) error {
    who, err := requester(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := shareableUUID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid shareable uuid"})
    }
    var body reserveReq
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.From.IsZero() || body.To.IsZero() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "from and to are required"})
    }

    ctx := c.Request().Context()
    res, err := h.Manager.Reserve(ctx, who, service.ReserveRequest{
        UUID:        id,
        From:        body.From,
        To:          body.To,
        Title:       body.Title,
        Description: body.Description,
    })
    refused := reserveResp{Response: q.ReserveResponse(false)}
    switch {
    case err == nil:
        return c.JSON(http.StatusCreated, reserveResp{Response: q.ReserveResponse(true), Reservation: &res})
    case errors.Is(err, service.ErrInvalidWindow):
        refused.Error = err.Error()
        return c.JSON(http.StatusBadRequest, refused)
    case errors.Is(err, repository.ErrNotFound):
        refused.Error = "shareable not found"
        return c.JSON(http.StatusNotFound, refused)
    case errors.Is(err, repository.ErrOverlap):
        refused.Error = "overlapping reservation"
        if s, err := h.Store.GetByUUID(ctx, id); err == nil {
            refused.Conflicts = s.Conflicts(
                body.From.UTC().Truncate(model.WindowPrecision),
                body.To.UTC().Truncate(model.WindowPrecision))
        }
        return c.JSON(http.StatusConflict, refused)
    }
    log.Printf("shareables: reserve on %s failed: %v", id, err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to store reservation"})
}

// CancelReservation handles DELETE /v1/shareables/:uuid/reservations/:id.
func (h *ShareableHandler) CancelReservation(c echo.Context) error {
    who, err := requester(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    sid, ok := shareableUUID(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid shareable uuid"})
    }
    rid, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || rid == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    if err := h.Manager.Cancel(c.Request().Context(), who, sid, rid); err != nil {
        switch {
        case errors.Is(err, repository.ErrNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
        case errors.Is(err, repository.ErrForbidden):
            return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel reservation"})
    }
    return c.NoContent(http.StatusNoContent)
}
