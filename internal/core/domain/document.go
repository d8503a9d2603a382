package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusQualified  DocumentStatus = "qualified"
	StatusAttributed DocumentStatus = "attributed"
	StatusChunked    DocumentStatus = "chunked"
	StatusEmbedded   DocumentStatus = "embedded"
	StatusRejected   DocumentStatus = "rejected"
)

// statusRank orders the happy-path statuses. Rejected is terminal and
// sits outside the ordering.
var statusRank = map[DocumentStatus]int{
	StatusPending:    0,
	StatusQualified:  1,
	StatusAttributed: 2,
	StatusChunked:    3,
	StatusEmbedded:   4,
}

// CanAdvanceTo reports whether moving from s to next is a legal status
// transition: statuses only advance, and rejection is only reachable from
// a non-terminal state.
func (s DocumentStatus) CanAdvanceTo(next DocumentStatus) bool {
	if s == StatusRejected {
		return false
	}
	if next == StatusRejected {
		return true
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	return okFrom && okTo && to > from
}

// Known reports whether s is one of the defined statuses.
func (s DocumentStatus) Known() bool {
	if s == StatusRejected {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

type CountryLabel string

const (
	CountryGhana        CountryLabel = "Ghana"
	CountryNigeria      CountryLabel = "Nigeria"
	CountryGhanaNigeria CountryLabel = "Ghana|Nigeria"
	CountryUnknown      CountryLabel = "Unknown"
)

// QualityMetrics captures the raw-text quality numbers the qualifier
// gates on.
type QualityMetrics struct {
	CharCount      int     `json:"char_count"`
	PageCount      int     `json:"page_count"`
	EmptyPageRatio float64 `json:"empty_page_ratio"`
}

// AvgCharsPerPage is derived, never stored.
func (m QualityMetrics) AvgCharsPerPage() float64 {
	if m.PageCount == 0 {
		return 0
	}
	return float64(m.CharCount) / float64(m.PageCount)
}

// Document identity is the content fingerprint: the SHA-256 of the raw
// bytes. A fingerprint maps to at most one Document.
type Document struct {
	Fingerprint       string         `json:"fingerprint"`
	Filename          string         `json:"filename"`
	StoragePath       string         `json:"storage_path"`
	Status            DocumentStatus `json:"status"`
	Quality           QualityMetrics `json:"quality"`
	Country           CountryLabel   `json:"country,omitempty"`
	CountryConfidence float64        `json:"country_confidence,omitempty"`
	Disease           string         `json:"disease,omitempty"`
	Year              int            `json:"year,omitempty"`
	RejectionReason   string         `json:"rejection_reason,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
