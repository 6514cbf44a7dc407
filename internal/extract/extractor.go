package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/cian-crawler/internal/domain"
	"github.com/user/cian-crawler/internal/monitoring"
)

// ErrNoInitialState means the state array parsed but its last entry was
// not the initialState record; the snapshot carries no offer data.
var ErrNoInitialState = errors.New(`payload does not end with an "initialState" entry`)

// Policy decides what a single undecodable offer does to its snapshot.
type Policy int

const (
	// SkipOffer drops the broken offer, logs it, and keeps going.
	SkipOffer Policy = iota
	// AbortSnapshot fails the whole snapshot on the first broken offer.
	AbortSnapshot
)

// Extractor turns one snapshot's markup into offer/house pairs. It is a
// pure transform: no network, no store access, one pass per snapshot.
type Extractor struct {
	locator Locator
	policy  Policy
	metrics *monitoring.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func New(locator Locator, policy Policy, m *monitoring.Metrics, logger *zap.Logger) *Extractor {
	return &Extractor{
		locator: locator,
		policy:  policy,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// stateEntry is one element of the serialized state array.
type stateEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// searchState is the slice of initialState the pipeline cares about.
type searchState struct {
	Results struct {
		Offers []rawOffer `json:"offers"`
	} `json:"results"`
}

// rawOffer mirrors the wire shape of one serialized offer. Pointer
// fields are the ones the site omits for some listings; their absence
// fails the offer rather than defaulting.
type rawOffer struct {
	ID             int64      `json:"id"`
	AddedTimestamp int64      `json:"addedTimestamp"`
	Category       string     `json:"category"`
	FlatType       string     `json:"flatType"`
	OfferType      string     `json:"offerType"`
	TotalArea      *areaValue `json:"totalArea"`
	FullURL        string     `json:"fullUrl"`
	FloorNumber    *int       `json:"floorNumber"`
	BargainTerms   struct {
		PriceRur float64 `json:"priceRur"`
	} `json:"bargainTerms"`
	Phones []struct {
		CountryCode string `json:"countryCode"`
		Number      string `json:"number"`
	} `json:"phones"`
	Geo *struct {
		UserInput   string `json:"userInput"`
		Coordinates struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"coordinates"`
	} `json:"geo"`
	Building *struct {
		BuildYear    int    `json:"buildYear"`
		FloorsCount  int    `json:"floorsCount"`
		MaterialType string `json:"materialType"`
	} `json:"building"`
}

// Extract locates and parses the serialized state in one snapshot and
// maps every offer to a domain pair. The returned error marks the whole
// snapshot as unusable; with the SkipOffer policy, individually broken
// offers are dropped instead.
func (e *Extractor) Extract(markup string, region domain.Region) ([]domain.Pair, error) {
	payload, err := e.locator.Locate(markup)
	if err != nil {
		return nil, err
	}

	var entries []stateEntry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		return nil, fmt.Errorf("parse state payload: %w", err)
	}
	if len(entries) == 0 || entries[len(entries)-1].Key != "initialState" {
		return nil, ErrNoInitialState
	}

	var state searchState
	if err := json.Unmarshal(entries[len(entries)-1].Value, &state); err != nil {
		return nil, fmt.Errorf("parse initialState value: %w", err)
	}

	parsedAt := dateOnly(e.now())
	pairs := make([]domain.Pair, 0, len(state.Results.Offers))
	for _, raw := range state.Results.Offers {
		pair, err := mapOffer(raw, region.Code, parsedAt)
		if err != nil {
			if e.policy == AbortSnapshot {
				return nil, fmt.Errorf("offer %d: %w", raw.ID, err)
			}
			e.metrics.OffersSkipped.Inc()
			e.logger.Warn("skipping malformed offer",
				zap.Int64("offer_id", raw.ID),
				zap.String("city", region.City),
				zap.Error(err),
			)
			continue
		}
		pairs = append(pairs, pair)
	}
	e.metrics.OffersExtracted.Add(float64(len(pairs)))
	return pairs, nil
}

func mapOffer(raw rawOffer, region int, parsedAt time.Time) (domain.Pair, error) {
	if raw.ID == 0 {
		return domain.Pair{}, errors.New("missing offer id")
	}
	if len(raw.Phones) == 0 {
		return domain.Pair{}, errors.New("offer has no phones")
	}
	if raw.Geo == nil {
		return domain.Pair{}, errors.New("offer has no geo block")
	}
	if raw.Building == nil {
		return domain.Pair{}, errors.New("offer has no building block")
	}
	if raw.FloorNumber == nil {
		return domain.Pair{}, errors.New("offer has no floor number")
	}
	if raw.TotalArea == nil {
		return domain.Pair{}, errors.New("offer has no total area")
	}

	offer := domain.Offer{
		OfferID:     raw.ID,
		AddedDate:   dateOnly(time.Unix(raw.AddedTimestamp, 0)),
		DateParsing: parsedAt,
		Region:      region,
		Category:    raw.Category,
		FlatType:    raw.FlatType,
		OfferType:   raw.OfferType,
		TotalArea:   float64(*raw.TotalArea),
		Price:       int64(raw.BargainTerms.PriceRur),
		Phone:       raw.Phones[0].CountryCode + raw.Phones[0].Number,
		Address:     raw.Geo.UserInput,
		Lat:         raw.Geo.Coordinates.Lat,
		Lng:         raw.Geo.Coordinates.Lng,
		Link:        raw.FullURL,
	}
	house := domain.House{
		OfferID:      raw.ID,
		YearHouse:    raw.Building.BuildYear,
		Floor:        *raw.FloorNumber,
		FloorsCount:  raw.Building.FloorsCount,
		MaterialType: raw.Building.MaterialType,
	}
	return domain.Pair{Offer: offer, House: house}, nil
}

// areaValue tolerates both encodings the site has used for totalArea:
// a bare number and a quoted decimal string.
type areaValue float64

func (a *areaValue) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("total area %s: %w", b, err)
	}
	*a = areaValue(f)
	return nil
}

// dateOnly truncates a timestamp to its calendar date; both date
// columns store dates, not instants.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
