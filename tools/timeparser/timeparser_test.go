package timeparser_test

import (
	"testing"
	"time"

	"github.com/lismorewater/flowmon/tools/timeparser"
)

func TestParseQueryTimestamp_RFC3339(t *testing.T) {
	result, err := timeparser.ParseQueryTimestamp("2026-03-14T09:30:45+10:00", time.UTC)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 3, 13, 23, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseQueryTimestamp_UnixSeconds(t *testing.T) {
	result, err := timeparser.ParseQueryTimestamp("1773440445", time.UTC)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	if result.Unix() != 1773440445 {
		t.Errorf("Expected unix 1773440445, got %d", result.Unix())
	}
}

func TestParseQueryTimestamp_PlainDateUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Brisbane")
	if err != nil {
		t.Fatalf("Failed to load location: %v", err)
	}

	result, err := timeparser.ParseQueryTimestamp("2026-03-14", loc)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 3, 14, 0, 0, 0, 0, loc)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseQueryTimestamp_DateTime(t *testing.T) {
	result, err := timeparser.ParseQueryTimestamp("2026-03-14 09:30:45", time.UTC)
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 3, 14, 9, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseQueryTimestamp_Invalid(t *testing.T) {
	if _, err := timeparser.ParseQueryTimestamp("yesterday", time.UTC); err == nil {
		t.Fatal("Expected error for unparseable timestamp")
	}
}
