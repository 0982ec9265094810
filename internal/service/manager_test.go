package service

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/iliyamo/shareables/internal/model"
    q "github.com/iliyamo/shareables/internal/queue"
    "github.com/iliyamo/shareables/internal/repository"
    "github.com/iliyamo/shareables/internal/utils"
)

const secret = "manager-secret"

// memStore keeps reservations per shareable and applies the same overlap
// rule as the SQL store.
type memStore struct {
    mu     sync.Mutex
    nextID uint64
    byUUID map[string]*model.Shareable
    err    error
}

func newMemStore(uuids ...string) *memStore {
    s := &memStore{byUUID: map[string]*model.Shareable{}}
    for i, u := range uuids {
        s.byUUID[u] = &model.Shareable{ID: uint64(i + 1), UUID: u}
    }
    return s
}

func (s *memStore) Reserve(_ context.Context, uuid string, res *model.Reservation) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil {
        return s.err
    }
    sh, ok := s.byUUID[uuid]
    if !ok {
        return repository.ErrNotFound
    }
    if len(sh.Conflicts(res.StartsAt, res.EndsAt)) > 0 {
        return repository.ErrOverlap
    }
    s.nextID++
    res.ID = s.nextID
    res.ShareableID = sh.ID
    sh.Reservations = append(sh.Reservations, *res)
    return nil
}

func (s *memStore) Delete(_ context.Context, uuid string, id, userID uint64, admin bool) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    sh, ok := s.byUUID[uuid]
    if !ok {
        return repository.ErrNotFound
    }
    for i, r := range sh.Reservations {
        if r.ID != id {
            continue
        }
        if r.UserID != userID && !admin {
            return repository.ErrForbidden
        }
        sh.Reservations = append(sh.Reservations[:i], sh.Reservations[i+1:]...)
        return nil
    }
    return repository.ErrNotFound
}

type userMap map[uint64]model.User

func (u userMap) GetByID(_ context.Context, id uint64) (model.User, error) {
    if v, ok := u[id]; ok {
        return v, nil
    }
    return model.User{}, repository.ErrNotFound
}

type sent struct {
    client string
    resp   q.Response
}

type fakeNotifier struct {
    msgs []sent
    err  error
}

func (n *fakeNotifier) Send(_ context.Context, client string, resp q.Response) error {
    n.msgs = append(n.msgs, sent{client, resp})
    return n.err
}

type countingPurger struct{ n int }

func (p *countingPurger) Purge(context.Context) error { p.n++; return nil }

const van = "6a1d2c7e-0b8f-4c43-8d2e-7f3b9a0c1d22"

var day = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func hours(from, to int) (time.Time, time.Time) {
    return day.Add(time.Duration(from) * time.Hour), day.Add(time.Duration(to) * time.Hour)
}

func newTestManager(t *testing.T) (*Manager, *memStore, *fakeNotifier, *countingPurger) {
    t.Helper()
    store := newMemStore(van)
    users := userMap{
        1: {ID: 1, Name: "ann", Role: model.RoleUser, IsActive: true},
        2: {ID: 2, Name: "bob", Role: model.RoleUser, IsActive: false},
    }
    n := &fakeNotifier{}
    p := &countingPurger{}
    return NewManager(store, users, n, p, secret, true), store, n, p
}

func TestReserveDefaults(t *testing.T) {
    m, store, _, purger := newTestManager(t)
    from, to := hours(9, 10)

    res, err := m.Reserve(context.Background(), Requester{UserID: 1, Name: "ann"}, ReserveRequest{UUID: van, From: from, To: to})
    if err != nil {
        t.Fatalf("Reserve: %v", err)
    }
    if res.Title != "Reserved by ann" || res.Description != "" || res.UserID != 1 {
        t.Fatalf("unexpected reservation: %+v", res)
    }
    if len(store.byUUID[van].Reservations) != 1 {
        t.Fatal("reservation not stored")
    }
    if purger.n != 1 {
        t.Fatalf("purges = %d, want 1", purger.n)
    }
}

func TestReserveTitles(t *testing.T) {
    m, _, _, _ := newTestManager(t)
    title, empty, blank, desc := "Move house", "", "  ", "bring straps"
    who := Requester{UserID: 1, Name: "ann"}

    from, to := hours(9, 10)
    res, err := m.Reserve(context.Background(), who, ReserveRequest{UUID: van, From: from, To: to, Title: &title, Description: &desc})
    if err != nil || res.Title != title || res.Description != desc {
        t.Fatalf("res = %+v, err = %v", res, err)
    }

    from, to = hours(11, 12)
    res, err = m.Reserve(context.Background(), who, ReserveRequest{UUID: van, From: from, To: to, Title: &empty})
    if err != nil || res.Title != "Reserved by ann" {
        t.Fatalf("empty title not defaulted: %+v, %v", res, err)
    }

    // only an absent or empty title is replaced
    from, to = hours(13, 14)
    res, err = m.Reserve(context.Background(), who, ReserveRequest{UUID: van, From: from, To: to, Title: &blank})
    if err != nil || res.Title != blank {
        t.Fatalf("whitespace title replaced: %+v, %v", res, err)
    }
}

func TestReserveTruncatesToStoredPrecision(t *testing.T) {
    m, store, _, _ := newTestManager(t)
    who := Requester{UserID: 1, Name: "ann"}
    noon := day.Add(12 * time.Hour)

    // stored as [11:00:00.000, 12:00:00.000]
    if _, err := m.Reserve(context.Background(), who, ReserveRequest{UUID: van, From: noon.Add(-time.Hour), To: noon.Add(400 * time.Microsecond)}); err != nil {
        t.Fatalf("seed: %v", err)
    }
    got := store.byUUID[van].Reservations[0]
    if !got.EndsAt.Equal(noon) {
        t.Fatalf("ends_at = %s, want %s", got.EndsAt.Format(time.RFC3339Nano), noon.Format(time.RFC3339Nano))
    }

    // 12:00:00.0002 truncates onto the stored end and must conflict
    _, err := m.Reserve(context.Background(), who, ReserveRequest{UUID: van, From: noon.Add(200 * time.Microsecond), To: noon.Add(time.Hour)})
    if !errors.Is(err, repository.ErrOverlap) {
        t.Fatalf("err = %v, want ErrOverlap", err)
    }

    // a window shorter than a millisecond collapses
    _, err = m.Reserve(context.Background(), who, ReserveRequest{UUID: van, From: noon.Add(2 * time.Hour), To: noon.Add(2*time.Hour + 500*time.Microsecond)})
    if !errors.Is(err, ErrInvalidWindow) {
        t.Fatalf("err = %v, want ErrInvalidWindow", err)
    }
}

func TestReserveRefusals(t *testing.T) {
    tests := []struct {
        name     string
        uuid     string
        from, to int
        want     error
    }{
        {"starts inside existing", van, 10, 13, repository.ErrOverlap},
        {"ends inside existing", van, 8, 11, repository.ErrOverlap},
        {"contains existing", van, 8, 14, repository.ErrOverlap},
        {"touches existing end", van, 12, 13, repository.ErrOverlap},
        {"unknown shareable", "00000000-0000-0000-0000-000000000000", 14, 15, repository.ErrNotFound},
        {"empty window", van, 14, 14, ErrInvalidWindow},
        {"reversed window", van, 15, 14, ErrInvalidWindow},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            m, _, _, _ := newTestManager(t)
            who := Requester{UserID: 1, Name: "ann"}
            from, to := hours(10, 12)
            if _, err := m.Reserve(context.Background(), who, ReserveRequest{UUID: van, From: from, To: to}); err != nil {
                t.Fatalf("seed: %v", err)
            }

            from, to = hours(tt.from, tt.to)
            _, err := m.Reserve(context.Background(), who, ReserveRequest{UUID: tt.uuid, From: from, To: to})
            if !errors.Is(err, tt.want) {
                t.Fatalf("err = %v, want %v", err, tt.want)
            }
            if !Refused(err) {
                t.Fatal("refusal not recognised")
            }
        })
    }
}

func TestHandleReserveSendsResponse(t *testing.T) {
    m, _, n, _ := newTestManager(t)
    tok, err := utils.NewAccessToken(secret, 1, model.RoleUser, "ann", 5)
    if err != nil {
        t.Fatal(err)
    }
    from, to := hours(9, 10)
    ev := q.ReserveEvent{Client: "client-1", Token: tok.Token, Data: q.ReserveData{UUID: van, From: from, To: to}}

    if err := m.HandleReserve(context.Background(), ev); err != nil {
        t.Fatalf("first: %v", err)
    }
    if err := m.HandleReserve(context.Background(), ev); err != nil {
        t.Fatalf("second: %v", err)
    }

    want := []sent{
        {"client-1", q.Response{Component: "isomer.shareables.manager", Action: "reserve", Data: true}},
        {"client-1", q.Response{Component: "isomer.shareables.manager", Action: "reserve", Data: false}},
    }
    if len(n.msgs) != len(want) {
        t.Fatalf("sent %d messages, want %d", len(n.msgs), len(want))
    }
    for i := range want {
        if n.msgs[i] != want[i] {
            t.Errorf("message %d = %+v, want %+v", i, n.msgs[i], want[i])
        }
    }
}

func TestHandleReserveUnauthorized(t *testing.T) {
    m, _, n, _ := newTestManager(t)
    from, to := hours(9, 10)
    data := q.ReserveData{UUID: van, From: from, To: to}

    inactive, _ := utils.NewAccessToken(secret, 2, model.RoleUser, "bob", 5)
    unknown, _ := utils.NewAccessToken(secret, 99, model.RoleUser, "ghost", 5)
    forged, _ := utils.NewAccessToken("other", 1, model.RoleUser, "ann", 5)

    for name, tok := range map[string]string{"inactive": inactive.Token, "unknown": unknown.Token, "forged": forged.Token} {
        t.Run(name, func(t *testing.T) {
            err := m.HandleReserve(context.Background(), q.ReserveEvent{Client: "c", Token: tok, Data: data})
            if !errors.Is(err, ErrUnauthorized) {
                t.Fatalf("err = %v, want ErrUnauthorized", err)
            }
        })
    }
    if len(n.msgs) != 0 {
        t.Fatalf("unauthorized events answered: %+v", n.msgs)
    }
}

func TestHandleReserveStoreFailureIsNotAnswered(t *testing.T) {
    m, store, n, _ := newTestManager(t)
    store.err = errors.New("connection reset")
    tok, _ := utils.NewAccessToken(secret, 1, model.RoleUser, "ann", 5)
    from, to := hours(9, 10)

    err := m.HandleReserve(context.Background(), q.ReserveEvent{Client: "c", Token: tok.Token, Data: q.ReserveData{UUID: van, From: from, To: to}})
    if err == nil {
        t.Fatal("expected store error")
    }
    if len(n.msgs) != 0 {
        t.Fatal("failure should not be answered")
    }
}

func TestCancel(t *testing.T) {
    m, _, _, purger := newTestManager(t)
    from, to := hours(9, 10)
    res, err := m.Reserve(context.Background(), Requester{UserID: 1, Name: "ann"}, ReserveRequest{UUID: van, From: from, To: to})
    if err != nil {
        t.Fatal(err)
    }

    if err := m.Cancel(context.Background(), Requester{UserID: 3}, van, res.ID); !errors.Is(err, repository.ErrForbidden) {
        t.Fatalf("stranger cancel err = %v", err)
    }
    if err := m.Cancel(context.Background(), Requester{UserID: 3, Admin: true}, van, res.ID); err != nil {
        t.Fatalf("admin cancel: %v", err)
    }
    if purger.n != 2 {
        t.Fatalf("purges = %d, want 2", purger.n)
    }
}

func TestObjectCreated(t *testing.T) {
    m, _, _, purger := newTestManager(t)
    if err := m.ObjectCreated(context.Background(), q.ObjectCreatedEvent{Schema: "user", UUID: "x"}); err != nil {
        t.Fatal(err)
    }
    if purger.n != 0 {
        t.Fatal("non-shareable schema purged the cache")
    }
    if err := m.ObjectCreated(context.Background(), q.ObjectCreatedEvent{Schema: q.SchemaShareable, UUID: van}); err != nil {
        t.Fatal(err)
    }
    if purger.n != 1 {
        t.Fatalf("purges = %d, want 1", purger.n)
    }
}
