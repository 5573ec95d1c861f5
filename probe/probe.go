// Package probe keeps a durable log of failed routing attempts for
// offline analysis.  The running node only ever appends to it.
package probe

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Attempt is one failed intermediate-hop payment attempt: which node we
// were probing toward, which node reported the failure (our guess at
// the culprit), over which channel, and the classified error.
type Attempt struct {
	ID           uint `gorm:"primaryKey"`
	TargetPubkey string
	GuessPubkey  string
	ChannelID    string
	Result       string
}

// Log is the append-only attempt database.
type Log struct {
	db *gorm.DB
}

// Open opens (or creates) the attempt log at path.
func Open(path string) (*Log, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(&Attempt{})
	if err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Record appends one attempt row.
func (l *Log) Record(a *Attempt) error {
	return l.db.Create(a).Error
}

// Attempts reads the whole log back, oldest first.  Not used by the
// running node; this is the offline-analysis surface.
func (l *Log) Attempts() ([]Attempt, error) {
	var rows []Attempt
	err := l.db.Order("id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Classify maps a standard onion failure code to the result string
// stored with the attempt.  Codes outside the table are "unknown".
func Classify(code uint16) string {
	switch code {
	case 0x400f:
		return "incorrect_or_unknown_payment_details"
	case 0x100c:
		return "fee_insufficient"
	case 0xc005:
		return "invalid_onion_hmac"
	case 0x400a:
		return "unknown_next_peer"
	}
	return "unknown"
}
