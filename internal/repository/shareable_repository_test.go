package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/shareables/internal/model"
)

func newShareableMock(t *testing.T) (*ShareableRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewShareableRepo(db), mock
}

func TestShareableCreateGeneratesUUID(t *testing.T) {
	repo, mock := newShareableMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO shareables")).
		WithArgs(sqlmock.AnyArg(), "Van", "blue one", 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(5, 1))

	s := &model.Shareable{Name: "Van", Description: "blue one", CreatedBy: 1}
	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID != 5 || len(s.UUID) != 36 {
		t.Fatalf("unexpected shareable: %+v", s)
	}
	if s.Reservations == nil {
		t.Fatal("reservations should be an empty slice")
	}
}

func TestShareableCreateDuplicate(t *testing.T) {
	repo, mock := newShareableMock(t)
	mock.ExpectExec("INSERT INTO shareables").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Create(context.Background(), &model.Shareable{UUID: shareableUUID, Name: "Van"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestShareableGetByUUIDLoadsReservations(t *testing.T) {
	repo, mock := newShareableMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM shareables WHERE uuid = ?")).
		WithArgs(shareableUUID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "name", "description", "created_by", "created_at", "updated_at"}).
			AddRow(7, shareableUUID, "Van", "", 1, created, created))
	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE shareable_id = ? ORDER BY starts_at")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow(1, 7, 3, start, start.Add(time.Hour), "Reserved by ann", "", created))

	s, err := repo.GetByUUID(context.Background(), shareableUUID)
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if s.Name != "Van" || len(s.Reservations) != 1 || s.Reservations[0].Title != "Reserved by ann" {
		t.Fatalf("unexpected shareable: %+v", s)
	}
}

func TestShareableGetByUUIDMissing(t *testing.T) {
	repo, mock := newShareableMock(t)
	mock.ExpectQuery("FROM shareables").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByUUID(context.Background(), shareableUUID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestShareableDelete(t *testing.T) {
	repo, mock := newShareableMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM shareables WHERE uuid = ?")).
		WithArgs(shareableUUID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), shareableUUID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
