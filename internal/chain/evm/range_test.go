package evm

import (
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeUneven(t *testing.T) {
	got, err := SplitRange(5, 11, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{{From: 5, To: 8}, {From: 9, To: 11}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero span")
	}
}

func TestSpanBelow(t *testing.T) {
	if got := spanBelow(100, 0, 10); got != (BlockRange{From: 91, To: 100}) {
		t.Fatalf("unexpected span %+v", got)
	}
	if got := spanBelow(100, 95, 10); got != (BlockRange{From: 95, To: 100}) {
		t.Fatalf("span must clamp at floor, got %+v", got)
	}
	if got := spanBelow(7, 7, 10); got != (BlockRange{From: 7, To: 7}) {
		t.Fatalf("single block span, got %+v", got)
	}
}
