// Package pagination parses the HTTP Link header that paginated APIs use to
// point at neighbouring pages.
//
// GitHub's search endpoints answer every page with a header like:
//
//	Link: <https://api.github.com/search/users?q=octocat&page=2>; rel="next",
//	      <https://api.github.com/search/users?q=octocat&page=34>; rel="last"
//
// ParseLinkHeader turns that value into a Links struct. Parsing degrades per
// entry: an entry without <...> delimiters, without a quoted relation, or with
// a URL that does not parse is skipped, and the rest of the header is still
// used. Continuation URLs are returned exactly as the server sent them.
//
// Example usage:
//
//	links := pagination.LinksFromHeader(resp.Header)
//	if links.Next != nil {
//		// fetch links.Next.String() when the user scrolls to the end
//	}
package pagination
