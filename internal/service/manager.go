package service

import (
    "context"
    "errors"
    "fmt"
    "log"
    "time"

    "github.com/iliyamo/shareables/internal/model"
    q "github.com/iliyamo/shareables/internal/queue"
    "github.com/iliyamo/shareables/internal/repository"
    "github.com/iliyamo/shareables/internal/utils"
)

// ErrInvalidWindow is returned when a reservation does not end after it starts.
var ErrInvalidWindow = errors.New("reservation must end after it starts")

// ErrUnauthorized is returned when a reserve event carries no usable identity.
var ErrUnauthorized = errors.New("unauthorized")

// ReservationStore persists reservations atomically with the overlap check.
type ReservationStore interface {
    Reserve(ctx context.Context, shareableUUID string, res *model.Reservation) error
    Delete(ctx context.Context, shareableUUID string, id, userID uint64, asAdmin bool) error
}

// UserLookup resolves the user behind an event's access token.
type UserLookup interface {
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Notifier delivers a response to one client.
type Notifier interface {
    Send(ctx context.Context, client string, resp q.Response) error
}

// Purger drops cached shareable listings.
type Purger interface {
    Purge(ctx context.Context) error
}

// Requester identifies who is reserving.
type Requester struct {
    UserID uint64
    Name   string
    Admin  bool
}

// ReserveRequest is a reservation attempt.  A nil or empty Title becomes
// "Reserved by <name>"; a nil Description becomes "".
type ReserveRequest struct {
    UUID        string
    From        time.Time
    To          time.Time
    Title       *string
    Description *string
}

// Manager manages shareable resources: it stores reservations, answers the
// requesting client and keeps cached listings fresh.
type Manager struct {
    store    ReservationStore
    users    UserLookup
    notifier Notifier
    purger   Purger
    secret   string
    debug    bool
}

// NewManager wires the manager.  purger may be nil.
func NewManager(store ReservationStore, users UserLookup, notifier Notifier, purger Purger, jwtSecret string, debug bool) *Manager {
    if store == nil || users == nil || notifier == nil {
        panic("nil dependency passed to NewManager")
    }
    log.Printf("shareables: manager started")
    return &Manager{store: store, users: users, notifier: notifier, purger: purger, secret: jwtSecret, debug: debug}
}

func (m *Manager) debugf(format string, args ...any) {
    if m.debug {
        log.Printf("shareables: [debug] "+format, args...)
    }
}

// Reserve stores a reservation for who unless it overlaps an existing one.
// Errors: ErrInvalidWindow, repository.ErrNotFound, repository.ErrOverlap or
// a store failure.
func (m *Manager) Reserve(ctx context.Context, who Requester, req ReserveRequest) (model.Reservation, error) {
    from := req.From.UTC().Truncate(model.WindowPrecision)
    to := req.To.UTC().Truncate(model.WindowPrecision)
    if !to.After(from) {
        return model.Reservation{}, ErrInvalidWindow
    }
    res := model.Reservation{
        UserID:   who.UserID,
        StartsAt: from,
        EndsAt:   to,
        Title:    model.DefaultTitle(who.Name),
    }
    if req.Title != nil && *req.Title != "" {
        res.Title = *req.Title
    }
    if req.Description != nil {
        res.Description = *req.Description
    }

    m.debugf("reserve %s [%s, %s] for user %d", req.UUID, res.StartsAt.Format(time.RFC3339), res.EndsAt.Format(time.RFC3339), who.UserID)
    err := m.store.Reserve(ctx, req.UUID, &res)
    switch {
    case err == nil:
        log.Printf("shareables: stored reservation %d on %s", res.ID, req.UUID)
        m.purge(ctx)
        return res, nil
    case errors.Is(err, repository.ErrOverlap):
        log.Printf("shareables: not able to store reservation on %s due to overlapping reservations", req.UUID)
    case errors.Is(err, repository.ErrNotFound):
        log.Printf("shareables: reservation for unknown shareable %s", req.UUID)
    }
    return model.Reservation{}, err
}

// Refused reports whether err is a business refusal (answered with
// data=false) rather than a failure.
func Refused(err error) bool {
    return errors.Is(err, ErrInvalidWindow) ||
        errors.Is(err, repository.ErrOverlap) ||
        errors.Is(err, repository.ErrNotFound)
}

// HandleReserve is the event entry point.  It authorizes the event, reserves
// and sends the outcome to ev.Client.  Failures other than refusals are
// logged and returned without answering the client.
func (m *Manager) HandleReserve(ctx context.Context, ev q.ReserveEvent) error {
    who, err := m.authorize(ctx, ev.Token)
    if err != nil {
        log.Printf("shareables: rejected reserve event from client %s: %v", ev.Client, err)
        return err
    }
    _, err = m.Reserve(ctx, who, ReserveRequest{
        UUID:        ev.Data.UUID,
        From:        ev.Data.From,
        To:          ev.Data.To,
        Title:       ev.Data.Title,
        Description: ev.Data.Description,
    })
    if err != nil && !Refused(err) {
        log.Printf("shareables: unknown failure: %v", err)
        return err
    }
    if err := m.notifier.Send(ctx, ev.Client, q.ReserveResponse(err == nil)); err != nil {
        return fmt.Errorf("send response: %w", err)
    }
    return nil
}

func (m *Manager) authorize(ctx context.Context, token string) (Requester, error) {
    claims, err := utils.ParseAccessToken(token, m.secret)
    if err != nil {
        return Requester{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
    }
    id, _ := claims.UserID()
    u, err := m.users.GetByID(ctx, id)
    if errors.Is(err, repository.ErrNotFound) {
        return Requester{}, fmt.Errorf("%w: unknown user %d", ErrUnauthorized, id)
    }
    if err != nil {
        return Requester{}, err
    }
    if !u.IsActive {
        return Requester{}, fmt.Errorf("%w: user %d inactive", ErrUnauthorized, id)
    }
    return Requester{UserID: u.ID, Name: u.Name, Admin: u.IsAdmin()}, nil
}

// Cancel removes a reservation.  Only its owner or an admin may do so.
func (m *Manager) Cancel(ctx context.Context, who Requester, shareableUUID string, id uint64) error {
    if err := m.store.Delete(ctx, shareableUUID, id, who.UserID, who.Admin); err != nil {
        return err
    }
    log.Printf("shareables: cancelled reservation %d on %s", id, shareableUUID)
    m.purge(ctx)
    return nil
}

// ObjectCreated refreshes cached listings when a shareable is created.
// Other schemas are ignored.
func (m *Manager) ObjectCreated(ctx context.Context, ev q.ObjectCreatedEvent) error {
    if ev.Schema != q.SchemaShareable {
        return nil
    }
    log.Printf("shareables: updating shareables (%s created)", ev.UUID)
    if m.purger == nil {
        return nil
    }
    return m.purger.Purge(ctx)
}

func (m *Manager) purge(ctx context.Context) {
    if m.purger == nil {
        return
    }
    if err := m.purger.Purge(ctx); err != nil {
        log.Printf("shareables: cache purge failed: %v", err)
    }
}
