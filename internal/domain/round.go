package domain

import "time"

// DnsRoundResult is the persisted "latest result" report for one line of
// one evaluation round: the selected IPs plus a JSON score snapshot.
type DnsRoundResult struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoundTs   time.Time `gorm:"index" json:"round_ts"`
	Line      string    `gorm:"index;size:16" json:"line"`
	Ips       string    `json:"ips"`    // JSON array of selected IPs, ordered
	Scores    string    `json:"scores"` // JSON array of {ip, score} pairs
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
	Unchanged int       `json:"unchanged"`
	Failures  int       `json:"failures"`
	CreatedAt time.Time `json:"created_at"`
}

func (DnsRoundResult) TableName() string {
	return "dns_round_result"
}

// DnsPublishedState is the per-line snapshot of the record set the system
// believes is live in DNS after the last successful reconciliation.
type DnsPublishedState struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Line      string    `gorm:"uniqueIndex;size:16" json:"line"`
	Ips       string    `json:"ips"` // JSON array
	UpdatedAt time.Time `json:"updated_at"`
}

func (DnsPublishedState) TableName() string {
	return "dns_published_state"
}
