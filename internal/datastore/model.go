// model.go defines the run history tables
package datastore

import "time"

// AnalysisRun is one analyzed recording
type AnalysisRun struct {
	ID              uint      `gorm:"primaryKey"`
	RunID           string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	SourceFile      string    `gorm:"index:idx_runs_source"`
	SourcePath      string
	DurationSeconds float64
	AnalyzedAt      time.Time `gorm:"index:idx_runs_analyzed_at"`
	WindowSeconds   float64
	Overlap         float64
	Threshold       float64
	GapThreshold    float64
	Windows         int
	Analyzed        int
	Skipped         int
	ProcessingTime  time.Duration
	Events          []EventRecord `gorm:"foreignKey:AnalysisRunID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time
}

// EventRecord is one grouped event of a run
type EventRecord struct {
	ID            uint   `gorm:"primaryKey"`
	AnalysisRunID uint   `gorm:"index;not null"`
	Label         string `gorm:"index:idx_events_label"`
	StartSeconds  float64
	EndSeconds    float64
	Duration      float64
	Confidence    float64
	WindowCount   int
}

// LabelCount aggregates events per label across runs
type LabelCount struct {
	Label          string
	Events         int64
	TotalSeconds   float64
	MeanConfidence float64
}
