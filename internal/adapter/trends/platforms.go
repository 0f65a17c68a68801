package trends

import (
	"net/url"
	"strings"

	"github.com/moolen/insight/internal/capability"
)

// Platform is a social network searched by site restriction.
type Platform struct {
	Name  string
	Sites []string
}

var (
	facebook = Platform{Name: "facebook", Sites: []string{"facebook.com"}}
	youtube  = Platform{Name: "youtube", Sites: []string{"youtube.com"}}
	tiktok   = Platform{Name: "tiktok", Sites: []string{"tiktok.com"}}
	pantip   = Platform{Name: "pantip", Sites: []string{"pantip.com"}}
	xcom     = Platform{Name: "x", Sites: []string{"x.com", "twitter.com"}}

	primaryPlatforms = []Platform{facebook, youtube, tiktok, pantip}
	allPlatforms     = []Platform{facebook, youtube, tiktok, pantip, xcom}

	// X is searched only for Gen Z topics or when asked for by name.
	xTerms = []string{"gen z", "genz", "gen_z", "twitter", "x.com", "ทวิตเตอร์", "เจนซี"}
)

// recencyHint is appended to every search to favour recent Thai posts.
const recencyHint = "ล่าสุด"

// platformsFor returns the platforms to search for q. An explicit platform
// parameter narrows the search to that platform when it is a social network.
func platformsFor(q capability.Query) []Platform {
	if p := q.Params.Platform; p != "" {
		for _, pl := range allPlatforms {
			if pl.Name == p || (p == "twitter" && pl.Name == "x") {
				return []Platform{pl}
			}
		}
	}
	out := append([]Platform(nil), primaryPlatforms...)
	if q.Params.Segment == "gen_z" || q.Mentions(xTerms...) {
		out = append(out, xcom)
	}
	return out
}

// siteQuery restricts terms to the platform's sites.
func (p Platform) siteQuery(terms string) string {
	sites := make([]string, len(p.Sites))
	for i, s := range p.Sites {
		sites[i] = "site:" + s
	}
	return terms + " " + strings.Join(sites, " OR ")
}

// platformOf maps a result URL to a platform name, or "web".
func platformOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "web"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, pl := range allPlatforms {
		for _, site := range pl.Sites {
			if host == site || strings.HasSuffix(host, "."+site) {
				return pl.Name
			}
		}
	}
	return "web"
}

func platformNames(ps []Platform) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

// searchTerms is the question reduced to a search string: whitespace
// collapsed, capped in length and tagged with the recency hint.
func searchTerms(q capability.Query) string {
	terms := strings.Join(strings.Fields(q.Text), " ")
	if r := []rune(terms); len(r) > 120 {
		terms = string(r[:120])
	}
	return terms + " " + recencyHint
}

// recencyDays bounds the search window. Social data older than max days is
// not considered even when the query window is longer.
func recencyDays(q capability.Query, max int) int {
	days := q.Params.Window.Days()
	if days <= 0 || days > max {
		return max
	}
	return days
}
