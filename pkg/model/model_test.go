package model

import (
	"errors"
	"testing"
)

func TestPageBounds(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		offset    int
		limit     int
		wantStart int
		wantEnd   int
		wantErr   error
	}{
		{"all", 5, 0, 0, 0, 5, nil},
		{"page", 5, 1, 2, 1, 3, nil},
		{"limit past end", 5, 3, 10, 3, 5, nil},
		{"offset past end", 5, 99, 10, 5, 5, nil},
		{"empty", 0, 0, 0, 0, 0, nil},
		{"limit too large", 5, 0, MaxPageLimit + 1, 0, 0, ErrLimitTooLarge},
		{"negative offset", 5, -1, 0, 0, 0, ErrInvalidOffset},
		{"negative offset with limit", 5, -3, 2, 0, 0, ErrInvalidOffset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := PageBounds(tt.total, tt.offset, tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if start != tt.wantStart || end != tt.wantEnd {
				t.Fatalf("bounds = [%d:%d], want [%d:%d]", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
