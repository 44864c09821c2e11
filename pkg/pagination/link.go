package pagination

import (
	"net/http"
	"net/url"
	"strings"
)

// Relation names understood by ParseLinkHeader.
const (
	RelNext  = "next"
	RelPrev  = "prev"
	RelFirst = "first"
	RelLast  = "last"
)

// HeaderLink is the canonical name of the pagination header.
const HeaderLink = "Link"

// Links holds the relation URLs found in a Link header. A nil field means the
// relation was absent or could not be parsed.
type Links struct {
	Next  *url.URL
	Prev  *url.URL
	First *url.URL
	Last  *url.URL
}

// HasNext reports whether a next page is known.
func (l Links) HasNext() bool {
	return l.Next != nil
}

// IsFirstPage reports whether the response that carried these links is the
// first page of a result set, i.e. it has no prev relation.
func (l Links) IsFirstPage() bool {
	return l.Prev == nil
}

// LinksFromHeader parses every Link field of h. Multiple fields are treated
// as one comma-separated list.
func LinksFromHeader(h http.Header) Links {
	if h == nil {
		return Links{}
	}
	return ParseLinkHeader(strings.Join(h.Values(HeaderLink), ","))
}

// ParseLinkHeader parses a Link header value such as
//
//	<https://api.github.com/search/users?q=a&page=2>; rel="next"
//
// Empty input yields zero Links. The relation of an entry is the first
// double-quoted value among its attributes, so an entry carrying another
// quoted attribute before rel is read with that attribute's value.
func ParseLinkHeader(value string) Links {
	var links Links
	if strings.TrimSpace(value) == "" {
		return links
	}

	for _, entry := range strings.Split(value, ",") {
		target, rel, ok := parseEntry(entry)
		if !ok {
			continue
		}

		switch rel {
		case RelNext:
			links.Next = target
		case RelPrev:
			links.Prev = target
		case RelFirst:
			links.First = target
		case RelLast:
			links.Last = target
		}
	}

	return links
}

// parseEntry splits one `<url>; key="value"...` entry.
func parseEntry(entry string) (*url.URL, string, bool) {
	segments := strings.Split(entry, ";")
	if len(segments) < 2 {
		return nil, "", false
	}

	raw := strings.TrimSpace(segments[0])
	if len(raw) < 2 || raw[0] != '<' || raw[len(raw)-1] != '>' {
		return nil, "", false
	}
	raw = raw[1 : len(raw)-1]
	if raw == "" {
		return nil, "", false
	}

	target, err := url.Parse(raw)
	if err != nil {
		return nil, "", false
	}

	rel, ok := firstQuoted(segments[1:])
	if !ok {
		return nil, "", false
	}

	return target, rel, true
}

// firstQuoted returns the first complete "..." value in segments.
func firstQuoted(segments []string) (string, bool) {
	for _, segment := range segments {
		_, rest, found := strings.Cut(segment, `"`)
		if !found {
			continue
		}
		value, _, closed := strings.Cut(rest, `"`)
		if !closed {
			continue
		}
		return value, true
	}
	return "", false
}
