package extract

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrPayloadNotFound means no script tag in the snapshot carried the
// serialized search state.
var ErrPayloadNotFound = errors.New("serialized state payload not found")

// Locator finds the serialized-state blob inside one page's markup and
// returns it as a JSON string. The page-template dependency lives
// entirely behind this interface.
type Locator interface {
	Locate(markup string) (string, error)
}

// MarkerLocator scans every script tag for a stable marker and slices
// the outermost JSON array out of the matching script. It survives the
// site reordering its scripts or padding the boilerplate, which the
// positional variant does not.
type MarkerLocator struct {
	// Marker defaults to the initialState key the state array always
	// carries.
	Marker string
}

func (l MarkerLocator) Locate(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}
	marker := l.Marker
	if marker == "" {
		marker = `"initialState"`
	}

	var payload string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, marker) {
			return true
		}
		// The state is an array of objects. Anchoring on "[{" skips the
		// bracketed property accesses in the surrounding boilerplate.
		start := strings.Index(text, "[{")
		end := strings.LastIndex(text, "]")
		if start < 0 || end <= start {
			return true
		}
		payload = text[start : end+1]
		return false
	})

	if payload == "" {
		return "", ErrPayloadNotFound
	}
	return payload, nil
}

// PositionalLocator reproduces the legacy template contract: the blob
// sits in a fixed script tag of the body, between fixed head and tail
// character offsets. Kept as an alternative for the exact markup layout
// the marker scan was generalized from.
type PositionalLocator struct {
	Index int // script tag position within the body, zero-based
	Head  int // boilerplate characters before the payload
	Tail  int // boilerplate characters after it
}

// DefaultPositional matches the snapshot layout observed on the site:
// fourth text/javascript tag, 136 head characters, 2 tail characters.
func DefaultPositional() PositionalLocator {
	return PositionalLocator{Index: 3, Head: 136, Tail: 2}
}

func (l PositionalLocator) Locate(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}
	scripts := doc.Find(`body script[type="text/javascript"]`)
	if scripts.Length() <= l.Index {
		return "", ErrPayloadNotFound
	}
	text := strings.TrimSpace(scripts.Eq(l.Index).Text())
	if len(text) <= l.Head+l.Tail {
		return "", ErrPayloadNotFound
	}
	return text[l.Head : len(text)-l.Tail], nil
}
