package repository

import (
	"errors"
	"testing"

	"tally-service/internal/domain"

	"github.com/lib/pq"
)

func TestClassifyWriteError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantConflict bool
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyWriteError(tt.err)
			if tt.wantConflict {
				if !errors.Is(got, domain.ErrConcurrentUpdateConflict) {
					t.Fatalf("classifyWriteError(%v) = %v, want ErrConcurrentUpdateConflict", tt.err, got)
				}
				return
			}
			if got != tt.err {
				t.Fatalf("classifyWriteError(%v) = %v, want the error unchanged", tt.err, got)
			}
		})
	}
}
