package database

import (
	"time"

	"gorm.io/gorm"
)

// CardRecord indexes one persisted error card, so operators can query
// incident history without walking the artifact tree.
type CardRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ArtifactID     string    `gorm:"uniqueIndex;size:128;not null" json:"artifact_id"`
	Env            string    `gorm:"size:64" json:"env"`
	Service        string    `gorm:"size:255;index" json:"service"`
	RootName       string    `gorm:"size:512" json:"root_name"`
	HTTPCode       string    `gorm:"size:16" json:"http_code"`
	Exception      string    `gorm:"size:512" json:"exception"`
	ErrorCount     float64   `json:"error_count"`
	Severity       string    `gorm:"size:16;index" json:"severity"`
	UniqueTraces   int       `json:"unique_traces"`
	TimelineEvents int       `json:"timeline_events"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	ArtifactDir    string    `gorm:"size:1024" json:"artifact_dir"`
	Notified       bool      `gorm:"default:false" json:"notified"`
	CreatedAt      time.Time `json:"created_at"`
}

// CycleRecord records the outcome of one orchestration cycle.
type CycleRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	CardsFound     int       `json:"cards_found"`
	CardsProcessed int       `json:"cards_processed"`
	CardsSkipped   int       `json:"cards_skipped"`
	Succeeded      bool      `json:"succeeded"`
	Error          string    `gorm:"type:text" json:"error"`
	CreatedAt      time.Time `json:"created_at"`
}

// InsertCardRecord stores one card index row.
func InsertCardRecord(db *gorm.DB, rec *CardRecord) error {
	return db.Create(rec).Error
}

// MarkNotified flags a card record after its notification was delivered.
func MarkNotified(db *gorm.DB, artifactID string) error {
	return db.Model(&CardRecord{}).Where("artifact_id = ?", artifactID).
		Update("notified", true).Error
}

// InsertCycleRecord stores one cycle outcome row.
func InsertCycleRecord(db *gorm.DB, rec *CycleRecord) error {
	return db.Create(rec).Error
}

// RecentCards returns the newest card records, newest first.
func RecentCards(db *gorm.DB, limit int) ([]CardRecord, error) {
	var records []CardRecord
	err := db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// CardsForService returns card records for one service, newest first.
func CardsForService(db *gorm.DB, service string, limit int) ([]CardRecord, error) {
	var records []CardRecord
	err := db.Where("service = ?", service).
		Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
