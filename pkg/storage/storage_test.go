package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"no rows is permanent", pgx.ErrNoRows, ErrorPermanent},
		{"deadline exceeded is transient", context.DeadlineExceeded, ErrorTransient},
		{"serialization failure is transient", &pgconn.PgError{Code: "40001"}, ErrorTransient},
		{"deadlock is transient", &pgconn.PgError{Code: "40P01"}, ErrorTransient},
		{"unique violation is permanent", &pgconn.PgError{Code: "23505"}, ErrorPermanent},
		{"unclassified connection error is transient", errors.New("broken pipe"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err)
			var ce *ClassifiedError
			if !errors.As(classified, &ce) {
				t.Fatalf("expected a *ClassifiedError, got %T", classified)
			}
			if ce.Class != tt.want {
				t.Errorf("class = %q, want %q", ce.Class, tt.want)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("expected nil passthrough")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Classify(context.DeadlineExceeded)) {
		t.Error("expected deadline exceeded to be transient")
	}
	if IsTransient(Classify(pgx.ErrNoRows)) {
		t.Error("expected no-rows to not be transient")
	}
}
