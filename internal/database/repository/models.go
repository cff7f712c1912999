package repository

import "time"

// Category represents a category row.
type Category struct {
	ID           string
	Name         string
	Color        string
	Emoji        string
	IsSystem     bool
	DisplayOrder int
	CreatedAt    time.Time
}

// Merchant is keyed by its normalized name.
type Merchant struct {
	NormalizedName string
	DisplayName    string
	CategoryID     string
	IsUserDefined  bool
	IsExcluded     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MerchantAlias points an alternative normalized spelling at a merchant.
type MerchantAlias struct {
	Alias          string
	NormalizedName string
	CreatedAt      time.Time
}

// Transaction represents a transaction row. Amounts are minor units (paise).
type Transaction struct {
	ID                 string
	SourceMessageID    string
	AmountMinor        int64
	MerchantRaw        string
	NormalizedMerchant string
	CategoryID         *string
	BankName           string
	TransactionDate    time.Time
	RawBody            string
	ReferenceNumber    *string
	Confidence         float64
	IsDebit            bool
	CreatedAt          time.Time
}

// SyncState is the single-row ingestion bookmark.
type SyncState struct {
	LastMessageAt     time.Time
	LastMessageID     string
	TotalTransactions int64
	LastFullSync      time.Time
	Status            string
}
