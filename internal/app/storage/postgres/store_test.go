package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

type row struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestInsertOne(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO widgets").
		WithArgs("w1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := NewStore(sqlx.NewDb(db, "postgres"), "widgets")
	if err := s.InsertOne(context.Background(), "w1", row{ID: "w1", Name: "alpha"}); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindOneDecodesDoc(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT doc FROM widgets").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(`{"id":"w1","name":"alpha"}`))

	s := NewStore(sqlx.NewDb(db, "postgres"), "widgets")
	var out row
	if err := s.FindOne(context.Background(), nil, &out); err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if out.Name != "alpha" {
		t.Fatalf("expected name alpha, got %q", out.Name)
	}
}

func TestCountDocuments(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	s := NewStore(sqlx.NewDb(db, "postgres"), "widgets")
	count, err := s.CountDocuments(context.Background(), nil)
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
}
