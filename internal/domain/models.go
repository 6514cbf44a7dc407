package domain

import "time"

// Region is one crawl partition: the site's numeric region code and the
// city subdomain it is served under.
type Region struct {
	Code int
	City string
}

// StopReason tags how a region's fetch loop terminated.
type StopReason int

const (
	Completed StopReason = iota
	EndOfResults
	BlockedByChallenge
	TransportError
)

func (r StopReason) String() string {
	switch r {
	case Completed:
		return "completed"
	case EndOfResults:
		return "end_of_results"
	case BlockedByChallenge:
		return "blocked_by_challenge"
	case TransportError:
		return "transport_error"
	}
	return "unknown"
}

// FetchReport summarizes one region's fetch loop.
type FetchReport struct {
	Region     Region
	PagesSaved int
	Reason     StopReason
	Err        error
}

// Offer mirrors the offers table. Prices are whole rubles, dates are
// calendar dates (the time-of-day part is not stored).
type Offer struct {
	OfferID     int64
	AddedDate   time.Time
	DateParsing time.Time
	Region      int
	Category    string
	FlatType    string
	OfferType   string
	TotalArea   float64
	Price       int64
	Phone       string
	Address     string
	Lat         float64
	Lng         float64
	Link        string
}

// House mirrors the house table: building facts for one offer, keyed by
// the same offer_id.
type House struct {
	OfferID      int64
	YearHouse    int
	Floor        int
	FloorsCount  int
	MaterialType string
}

// Pair is one extracted listing: the offer row and its house row. Both
// are written in the same unit of work.
type Pair struct {
	Offer Offer
	House House
}
