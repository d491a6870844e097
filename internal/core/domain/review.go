package domain

import "time"

// ReviewEntry is a single review left by a user. Entries are immutable once
// appended to a Review.
type ReviewEntry struct {
	Username string
	Review   string
	Date     time.Time
}

// Review is the payload of a review aggregate: all entries for one product in
// append order.
type Review struct {
	ProductID int64
	Entries   []ReviewEntry
}

func (r Review) Clone() Review {
	entries := make([]ReviewEntry, len(r.Entries))
	copy(entries, r.Entries)
	return Review{ProductID: r.ProductID, Entries: entries}
}
