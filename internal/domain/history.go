package domain

import "time"

// DnsIPHistory is one day's quality outcome for an (ip, line) pair.
// Rows are append-per-day with last-write-wins semantics inside a day;
// the history recorder prunes rows older than the configured window.
type DnsIPHistory struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IP        string    `gorm:"index:idx_ip_line_day,unique;size:64" json:"ip"`
	Line      string    `gorm:"index:idx_ip_line_day,unique;size:16" json:"line"`
	Day       string    `gorm:"index:idx_ip_line_day,unique;size:10" json:"day"` // YYYY-MM-DD
	Score     float64   `json:"score"`
	Passed    bool      `json:"passed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DnsIPHistory) TableName() string {
	return "dns_ip_history"
}
