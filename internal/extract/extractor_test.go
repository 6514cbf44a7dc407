package extract

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/cian-crawler/internal/domain"
	"github.com/user/cian-crawler/internal/monitoring"
)

var spb = domain.Region{Code: 2, City: "spb"}

const goodOffer = `{
	"id": 123456,
	"addedTimestamp": 1700000000,
	"category": "flatSale",
	"flatType": "rooms",
	"offerType": "flat",
	"totalArea": "45.5",
	"fullUrl": "https://spb.cian.ru/sale/flat/123456/",
	"floorNumber": 3,
	"bargainTerms": {"priceRur": 7500000},
	"phones": [{"countryCode": "+7", "number": "9211234567"}],
	"geo": {"userInput": "Невский проспект, 1", "coordinates": {"lat": 59.93, "lng": 30.31}},
	"building": {"buildYear": 1999, "floorsCount": 9, "materialType": "brick"}
}`

const phonelessOffer = `{
	"id": 654321,
	"addedTimestamp": 1700000000,
	"category": "flatSale",
	"flatType": "rooms",
	"offerType": "flat",
	"totalArea": "30.1",
	"fullUrl": "https://spb.cian.ru/sale/flat/654321/",
	"floorNumber": 1,
	"bargainTerms": {"priceRur": 4200000},
	"phones": [],
	"geo": {"userInput": "Литейный проспект, 5", "coordinates": {"lat": 59.94, "lng": 30.34}},
	"building": {"buildYear": 1910, "floorsCount": 5, "materialType": "brick"}
}`

// pageMarkup wraps a serialized state array in the site's script
// boilerplate: the blob sits in the body's fourth text/javascript tag.
func pageMarkup(state string) string {
	return fmt.Sprintf(`<html><head><script>var head = 1;</script></head><body>
<script type="text/javascript">window.jsHeap = [];</script>
<script type="text/javascript">var noise = "noise";</script>
<script type="text/javascript">void 0;</script>
<script type="text/javascript">window._config['frontend-serp'] = (window._config['frontend-serp'] || []).concat(%s);</script>
</body></html>`, state)
}

func stateArray(lastKey, offers string) string {
	return fmt.Sprintf(`[{"key":"defaultState","value":{}},{"key":%q,"value":{"results":{"offers":[%s]}}}]`, lastKey, offers)
}

func newTestExtractor(t *testing.T, policy Policy) *Extractor {
	t.Helper()
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	e := New(MarkerLocator{}, policy, m, zap.NewNop())
	e.now = func() time.Time { return time.Date(2026, 8, 29, 15, 4, 5, 0, time.UTC) }
	return e
}

func TestExtractMapsOfferAndHouse(t *testing.T) {
	e := newTestExtractor(t, SkipOffer)

	pairs, err := e.Extract(pageMarkup(stateArray("initialState", goodOffer)), spb)
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	offer := pairs[0].Offer
	assert.Equal(t, int64(123456), offer.OfferID)
	assert.Equal(t, dateOnly(time.Unix(1700000000, 0)), offer.AddedDate)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), offer.DateParsing)
	assert.Equal(t, 2, offer.Region)
	assert.Equal(t, "flatSale", offer.Category)
	assert.Equal(t, "rooms", offer.FlatType)
	assert.Equal(t, "flat", offer.OfferType)
	assert.Equal(t, 45.5, offer.TotalArea)
	assert.Equal(t, int64(7500000), offer.Price)
	assert.Equal(t, "+79211234567", offer.Phone)
	assert.Equal(t, "Невский проспект, 1", offer.Address)
	assert.Equal(t, 59.93, offer.Lat)
	assert.Equal(t, 30.31, offer.Lng)
	assert.Equal(t, "https://spb.cian.ru/sale/flat/123456/", offer.Link)

	house := pairs[0].House
	assert.Equal(t, int64(123456), house.OfferID)
	assert.Equal(t, 1999, house.YearHouse)
	assert.Equal(t, 3, house.Floor)
	assert.Equal(t, 9, house.FloorsCount)
	assert.Equal(t, "brick", house.MaterialType)
}

func TestExtractNumericTotalArea(t *testing.T) {
	e := newTestExtractor(t, SkipOffer)
	offer := `{"id": 9, "addedTimestamp": 1700000000, "totalArea": 61.2, "floorNumber": 2,
		"bargainTerms": {"priceRur": 1}, "phones": [{"countryCode": "+7", "number": "1"}],
		"geo": {"userInput": "x", "coordinates": {"lat": 1, "lng": 2}},
		"building": {"buildYear": 2000, "floorsCount": 10, "materialType": "panel"}}`

	pairs, err := e.Extract(pageMarkup(stateArray("initialState", offer)), spb)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 61.2, pairs[0].Offer.TotalArea)
}

func TestExtractWrongLastKey(t *testing.T) {
	e := newTestExtractor(t, SkipOffer)

	pairs, err := e.Extract(pageMarkup(stateArray("otherState", goodOffer)), spb)
	assert.ErrorIs(t, err, ErrNoInitialState)
	assert.Empty(t, pairs)
}

func TestExtractNoPayload(t *testing.T) {
	e := newTestExtractor(t, SkipOffer)

	_, err := e.Extract("<html><body><p>captcha?</p></body></html>", spb)
	assert.ErrorIs(t, err, ErrPayloadNotFound)
}

func TestExtractSkipsMalformedOffer(t *testing.T) {
	e := newTestExtractor(t, SkipOffer)
	state := stateArray("initialState", phonelessOffer+","+goodOffer)

	pairs, err := e.Extract(pageMarkup(state), spb)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, int64(123456), pairs[0].Offer.OfferID)
}

func TestExtractStrictAbortsSnapshot(t *testing.T) {
	e := newTestExtractor(t, AbortSnapshot)
	state := stateArray("initialState", phonelessOffer+","+goodOffer)

	pairs, err := e.Extract(pageMarkup(state), spb)
	assert.Error(t, err)
	assert.Empty(t, pairs)
	assert.Contains(t, err.Error(), "654321")
}

func TestExtractIdempotent(t *testing.T) {
	e := newTestExtractor(t, SkipOffer)
	markup := pageMarkup(stateArray("initialState", goodOffer))

	first, err := e.Extract(markup, spb)
	require.NoError(t, err)
	second, err := e.Extract(markup, spb)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMapOfferMissingBlocks(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{"no geo", `"geo": null`},
		{"no building", `"building": null`},
		{"no floor", `"floorNumber": null`},
		{"no area", `"totalArea": null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(t, AbortSnapshot)
			offer := `{"id": 5, "addedTimestamp": 1700000000, "totalArea": "10", "floorNumber": 1,
				"bargainTerms": {"priceRur": 1}, "phones": [{"countryCode": "+7", "number": "1"}],
				"geo": {"userInput": "x", "coordinates": {"lat": 1, "lng": 2}},
				"building": {"buildYear": 2000, "floorsCount": 10, "materialType": "panel"},` +
				tt.patch + `}`
			_, err := e.Extract(pageMarkup(stateArray("initialState", offer)), spb)
			assert.Error(t, err)
		})
	}
}
