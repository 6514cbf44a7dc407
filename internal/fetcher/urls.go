package fetcher

import (
	"fmt"

	"github.com/user/cian-crawler/internal/domain"
)

// rootURL is where every region's session is anchored: the search query
// rejects deep links unless the site root was visited first.
const rootURL = "https://cian.ru"

// room1..room7 and room9 cover every flat size the search exposes;
// room8 does not exist in the site's query schema.
const roomParams = "room1=1&room2=1&room3=1&room4=1&room5=1&room6=1&room7=1&room9=1"

// queryURL is the un-paginated sale-flats search for a region.
func queryURL(r domain.Region) string {
	return fmt.Sprintf("https://%s.cian.ru/cat.php?deal_type=sale&engine_version=2&offer_type=flat&region=%d&%s",
		r.City, r.Code, roomParams)
}

// pageURL is the same search pinned to one result page.
func pageURL(r domain.Region, page int) string {
	return fmt.Sprintf("https://%s.cian.ru/cat.php?deal_type=sale&engine_version=2&offer_type=flat&p=%d&region=%d&%s",
		r.City, page, r.Code, roomParams)
}
