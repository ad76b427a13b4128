package domain

import (
	"testing"
)

func TestNewSeries(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{name: "default capacity", capacity: DefaultHistoryCapacity},
		{name: "capacity of one", capacity: 1},
		{name: "zero capacity is invalid", capacity: 0, wantErr: true},
		{name: "negative capacity is invalid", capacity: -5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSeries(tt.capacity)
			if tt.wantErr {
				if err != ErrInvalidCapacity {
					t.Errorf("expected ErrInvalidCapacity, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Cap() != tt.capacity {
				t.Errorf("expected cap %d, got %d", tt.capacity, s.Cap())
			}
		})
	}
}

func TestSeries_BoundedAndOrdered(t *testing.T) {
	for _, capacity := range []int{1, 2, 3, 7, 16} {
		s, err := NewSeries(capacity)
		if err != nil {
			t.Fatalf("NewSeries(%d): %v", capacity, err)
		}

		var appended []Sample
		for i := 1; i <= 3*capacity+2; i++ {
			sample := Sample{Timestamp: float64(i), Value: float64(i) / 10}
			s.Append(sample)
			appended = append(appended, sample)

			if s.Len() > capacity {
				t.Fatalf("cap %d: len %d exceeds capacity", capacity, s.Len())
			}

			want := appended
			if len(want) > capacity {
				want = want[len(want)-capacity:]
			}
			got := s.Snapshot(capacity)
			if len(got) != len(want) {
				t.Fatalf("cap %d after %d appends: expected %d samples, got %d", capacity, i, len(want), len(got))
			}
			for j := range want {
				if got[j] != want[j] {
					t.Fatalf("cap %d after %d appends: index %d = %+v, want %+v", capacity, i, j, got[j], want[j])
				}
			}
		}
	}
}

func TestSeries_SnapshotLimit(t *testing.T) {
	s, _ := NewSeries(5)
	for i := 1; i <= 4; i++ {
		s.Append(Sample{Timestamp: float64(i), Value: float64(i)})
	}

	tests := []struct {
		limit int
		want  []float64
	}{
		{limit: 0, want: nil},
		{limit: -1, want: nil},
		{limit: 2, want: []float64{3, 4}},
		{limit: 4, want: []float64{1, 2, 3, 4}},
		{limit: 100, want: []float64{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		got := s.Snapshot(tt.limit)
		if len(got) != len(tt.want) {
			t.Errorf("Snapshot(%d): expected %d samples, got %d", tt.limit, len(tt.want), len(got))
			continue
		}
		for i, v := range tt.want {
			if got[i].Value != v {
				t.Errorf("Snapshot(%d)[%d] = %v, want %v", tt.limit, i, got[i].Value, v)
			}
		}
	}
}

func TestSeries_SnapshotIsCopy(t *testing.T) {
	s, _ := NewSeries(2)
	s.Append(Sample{Timestamp: 1, Value: 1})
	s.Append(Sample{Timestamp: 2, Value: 2})

	snap := s.Snapshot(2)
	s.Append(Sample{Timestamp: 3, Value: 3})

	if snap[0].Value != 1 || snap[1].Value != 2 {
		t.Errorf("snapshot changed after append: %+v", snap)
	}
}

func TestSeries_Last(t *testing.T) {
	s, _ := NewSeries(3)
	if _, ok := s.Last(); ok {
		t.Fatal("expected no last sample on empty series")
	}
	for i := 1; i <= 5; i++ {
		s.Append(Sample{Timestamp: float64(i), Value: float64(i)})
	}
	last, ok := s.Last()
	if !ok || last.Value != 5 {
		t.Errorf("expected last value 5, got %v (ok=%v)", last.Value, ok)
	}
}
