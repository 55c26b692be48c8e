// Package history archives probe outcomes in a sqlite database: an
// append-only run log plus a per-endpoint moving-average score that favors
// recent results.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"subrank/internal/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Alpha determines how much weight the latest test carries (0.0 - 1.0).
const Alpha = 0.2

// FailurePenalty is the score multiplier applied on a failed probe.
const FailurePenalty = 0.6

// EndpointScore is the rolling quality score of one endpoint, keyed by the
// hash of its descriptor string.
type EndpointScore struct {
	Hash        string `gorm:"primaryKey"`
	Score       float64
	SampleCount int
	LastTested  time.Time
}

// ProbeRun is one archived probe outcome.
type ProbeRun struct {
	ID             uint   `gorm:"primaryKey"`
	Hash           string `gorm:"index"`
	SubscriptionID string
	Success        bool
	LatencyMS      int
	Tier           string
	ErrorType      string
	CreatedAt      time.Time
}

// Archive wraps the sqlite store.
type Archive struct {
	db *gorm.DB
}

// Open connects to (or creates) the archive and migrates its schema.
func Open(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.AutoMigrate(&EndpointScore{}, &ProbeRun{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// HashDescriptor keys an endpoint by its raw descriptor string.
func HashDescriptor(descriptor string) string {
	sum := sha256.Sum256([]byte(descriptor))
	return hex.EncodeToString(sum[:])
}

// Record appends one probe run and folds it into the endpoint's score.
func (a *Archive) Record(descriptor, subscriptionID string, success bool, latencyMS int, tier, errorType string) {
	hash := HashDescriptor(descriptor)

	run := ProbeRun{
		Hash:           hash,
		SubscriptionID: subscriptionID,
		Success:        success,
		LatencyMS:      latencyMS,
		Tier:           tier,
		ErrorType:      errorType,
		CreatedAt:      time.Now(),
	}
	if err := a.db.Create(&run).Error; err != nil {
		logger.Log.Errorf("Failed to record probe run for %s: %v", hash[:12], err)
	}

	a.updateScore(hash, success, latencyMS)
}

// updateScore applies an exponential moving average on success and a hard
// penalty on failure: a proxy that fails now is useless no matter how fast
// it used to be.
func (a *Archive) updateScore(hash string, success bool, latencyMS int) {
	sample := scoreSample(success, latencyMS)

	var score EndpointScore
	err := a.db.Where("hash = ?", hash).Limit(1).Find(&score).Error

	if err != nil || score.Hash == "" {
		score = EndpointScore{
			Hash:        hash,
			Score:       sample,
			SampleCount: 1,
			LastTested:  time.Now(),
		}
	} else {
		if success {
			score.Score = score.Score*(1-Alpha) + sample*Alpha
		} else {
			score.Score = score.Score * FailurePenalty
		}
		score.SampleCount++
		score.LastTested = time.Now()
	}

	if err := a.db.Save(&score).Error; err != nil {
		logger.Log.Errorf("Failed to update score for %s: %v", hash[:12], err)
	}
}

// scoreSample normalizes a latency into (0,1]: 100ms ≈ 0.9, 1s ≈ 0.5.
func scoreSample(success bool, latencyMS int) float64 {
	if !success || latencyMS < 0 {
		return 0
	}
	return 1000.0 / (1000.0 + float64(latencyMS))
}

// Score returns the current score for a descriptor, 0 when unknown.
func (a *Archive) Score(descriptor string) float64 {
	var score EndpointScore
	a.db.Where("hash = ?", HashDescriptor(descriptor)).Limit(1).Find(&score)
	return score.Score
}

// Runs returns the most recent archived runs for a descriptor.
func (a *Archive) Runs(descriptor string, limit int) ([]ProbeRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []ProbeRun
	err := a.db.Where("hash = ?", HashDescriptor(descriptor)).
		Order("created_at desc").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
