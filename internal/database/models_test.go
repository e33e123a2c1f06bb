package database

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate error: %v", err)
	}
	return db
}

func testCardRecord(artifactID string) *CardRecord {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return &CardRecord{
		ArtifactID:     artifactID,
		Env:            "prod",
		Service:        "checkout",
		RootName:       "POST /pay",
		HTTPCode:       "503",
		Exception:      "UpstreamError",
		ErrorCount:     42,
		Severity:       "HIGH",
		UniqueTraces:   7,
		TimelineEvents: 12,
		WindowStart:    start,
		WindowEnd:      start.Add(5 * time.Minute),
		ArtifactDir:    "/tmp/error_checkout",
	}
}

func TestInsertCardRecord(t *testing.T) {
	db := testDB(t)

	if err := InsertCardRecord(db, testCardRecord("a-1")); err != nil {
		t.Fatalf("InsertCardRecord error: %v", err)
	}

	var loaded CardRecord
	if err := db.Where("artifact_id = ?", "a-1").First(&loaded).Error; err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if loaded.Service != "checkout" || loaded.ErrorCount != 42 || loaded.Severity != "HIGH" {
		t.Errorf("loaded record mismatch: %+v", loaded)
	}
	if loaded.Notified {
		t.Error("new record should not be marked notified")
	}

	// The artifact ID is unique.
	if err := InsertCardRecord(db, testCardRecord("a-1")); err == nil {
		t.Error("duplicate artifact ID should be rejected")
	}
}

func TestMarkNotified(t *testing.T) {
	db := testDB(t)
	if err := InsertCardRecord(db, testCardRecord("a-1")); err != nil {
		t.Fatalf("InsertCardRecord error: %v", err)
	}

	if err := MarkNotified(db, "a-1"); err != nil {
		t.Fatalf("MarkNotified error: %v", err)
	}

	var loaded CardRecord
	if err := db.Where("artifact_id = ?", "a-1").First(&loaded).Error; err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if !loaded.Notified {
		t.Error("record should be marked notified")
	}
}

func TestRecentCardsAndCardsForService(t *testing.T) {
	db := testDB(t)

	for i, svc := range []string{"checkout", "payments", "checkout"} {
		rec := testCardRecord(string(rune('a' + i)))
		rec.Service = svc
		if err := InsertCardRecord(db, rec); err != nil {
			t.Fatalf("InsertCardRecord error: %v", err)
		}
	}

	recent, err := RecentCards(db, 10)
	if err != nil {
		t.Fatalf("RecentCards error: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("RecentCards returned %d records; want 3", len(recent))
	}

	checkout, err := CardsForService(db, "checkout", 10)
	if err != nil {
		t.Fatalf("CardsForService error: %v", err)
	}
	if len(checkout) != 2 {
		t.Errorf("CardsForService returned %d records; want 2", len(checkout))
	}
	for _, rec := range checkout {
		if rec.Service != "checkout" {
			t.Errorf("CardsForService leaked %q", rec.Service)
		}
	}
}

func TestInsertCycleRecord(t *testing.T) {
	db := testDB(t)

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := &CycleRecord{
		WindowStart:    start,
		WindowEnd:      start.Add(5 * time.Minute),
		CardsFound:     3,
		CardsProcessed: 2,
		CardsSkipped:   1,
		Succeeded:      true,
	}
	if err := InsertCycleRecord(db, rec); err != nil {
		t.Fatalf("InsertCycleRecord error: %v", err)
	}

	var loaded CycleRecord
	if err := db.First(&loaded).Error; err != nil {
		t.Fatalf("failed to load cycle record: %v", err)
	}
	if loaded.CardsFound != 3 || loaded.CardsProcessed != 2 || loaded.CardsSkipped != 1 || !loaded.Succeeded {
		t.Errorf("loaded cycle record mismatch: %+v", loaded)
	}
}
