package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shareables/internal/handler"
	"github.com/iliyamo/shareables/internal/model"
	q "github.com/iliyamo/shareables/internal/queue"
	"github.com/iliyamo/shareables/internal/service"
	"github.com/iliyamo/shareables/internal/utils"
)

const (
	secret = "router-secret"
	van    = "6a1d2c7e-0b8f-4c43-8d2e-7f3b9a0c1d22"
)

type store struct{}

func (store) Create(_ context.Context, s *model.Shareable) error { s.UUID = van; return nil }
func (store) GetByUUID(context.Context, string) (model.Shareable, error) {
	return model.Shareable{UUID: van, Name: "Van"}, nil
}
func (store) List(context.Context) ([]model.Shareable, error) { return nil, nil }
func (store) Delete(context.Context, string) error            { return nil }

type reserver struct{}

func (reserver) Reserve(_ context.Context, who service.Requester, req service.ReserveRequest) (model.Reservation, error) {
	return model.Reservation{UserID: who.UserID, StartsAt: req.From, EndsAt: req.To}, nil
}
func (reserver) Cancel(context.Context, service.Requester, string, uint64) error { return nil }

type publisher struct{}

func (publisher) PublishObjectCreated(context.Context, q.ObjectCreatedEvent) error { return nil }

type pinger struct{}

func (pinger) PingContext(context.Context) error { return nil }

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newServer() *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, pinger{})
	RegisterShareables(e, handler.NewShareableHandler(store{}, reserver{}, publisher{}, nil), secret, passthrough, passthrough)
	return e
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, 9, role, "bo", 5)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func TestShareableRouteGuards(t *testing.T) {
	window := `{"from":"2026-06-01T09:00:00Z","to":"2026-06-01T10:00:00Z"}`
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"public list", http.MethodGet, "/v1/shareables", "", "", http.StatusOK},
		{"public get", http.MethodGet, "/v1/shareables/" + van, "", "", http.StatusOK},
		{"reserve needs token", http.MethodPost, "/v1/shareables/" + van + "/reserve", window, "", http.StatusUnauthorized},
		{"reserve as user", http.MethodPost, "/v1/shareables/" + van + "/reserve", window, model.RoleUser, http.StatusCreated},
		{"cancel as user", http.MethodDelete, "/v1/shareables/" + van + "/reservations/3", "", model.RoleUser, http.StatusNoContent},
		{"create as user", http.MethodPost, "/v1/shareables", `{"name":"Van"}`, model.RoleUser, http.StatusForbidden},
		{"create as admin", http.MethodPost, "/v1/shareables", `{"name":"Van"}`, model.RoleAdmin, http.StatusCreated},
		{"delete as user", http.MethodDelete, "/v1/shareables/" + van, "", model.RoleUser, http.StatusForbidden},
		{"delete as admin", http.MethodDelete, "/v1/shareables/" + van, "", model.RoleAdmin, http.StatusNoContent},
	}
	e := newServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			}
			if tt.auth != "" {
				req.Header.Set("Authorization", bearer(t, tt.auth))
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
