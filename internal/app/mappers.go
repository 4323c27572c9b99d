package app

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"directory/internal/domain"
)

/********** alias registries (single source of truth) **********/

var placeAliases = map[string][]string{
	"place_id":    {"id", "place_id", "placeId"},
	"name":        {"displayName.text", "name", "title"},
	"address":     {"formattedAddress", "formatted_address", "shortFormattedAddress", "address"},
	"phone":       {"internationalPhoneNumber", "nationalPhoneNumber", "international_phone_number", "formatted_phone_number", "phone"},
	"website":     {"websiteUri", "website"},
	"description": {"editorialSummary.text", "editorial_summary.overview", "description"},
	"price":       {"priceLevel", "price_level"},
}

var scrapeAliases = map[string][]string{
	"description": {"json.description", "json.about", "json.summary", "metadata.description", "metadata.ogDescription", "metadata.og:description"},
	"phone":       {"json.phone", "json.contact.phone", "json.contact_phone", "json.telephone"},
	"email":       {"json.email", "json.contact.email", "json.contact_email"},
	"og_image":    {"metadata.ogImage", "metadata.og:image", "json.image"},
}

var faqAliases = map[string][]string{
	"question": {"question", "q", "title"},
	"answer":   {"answer", "a", "body", "text"},
}

var policyAliases = map[string][]string{
	"kind":  {"kind", "type", "category"},
	"title": {"title", "name", "heading"},
	"body":  {"body", "text", "description", "content", "details"},
}

var reviewAliases = map[string][]string{
	"rating":      {"stars", "rating", "score", "rating.value"},
	"place_score": {"totalScore", "placeRating"},
	"place_count": {"reviewsCount", "userRatingCount", "user_ratings_total"},
}

var priceLevels = map[string]string{
	"PRICE_LEVEL_INEXPENSIVE":    "$",
	"PRICE_LEVEL_MODERATE":       "$$",
	"PRICE_LEVEL_EXPENSIVE":      "$$$",
	"PRICE_LEVEL_VERY_EXPENSIVE": "$$$$",
	"1":                          "$",
	"2":                          "$$",
	"3":                          "$$$",
	"4":                          "$$$$",
}

const maxExtractedImages = 20

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns the trimmed string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func ptrStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, sep)
}

// getFloatFlexible: number from several paths (float64/int/string like "8,0").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// firstIntFlexible: int from several paths (float64/int/string).
func firstIntFlexible(m map[string]any, paths ...string) *int {
	if f := getFloatFlexible(m, paths...); f != nil {
		n := int(*f)
		return &n
	}
	return nil
}

// firstSliceStrings: accept []any with either strings or {url/src/name}.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		if raw, ok := lookupAny(m, k).([]any); ok {
			out := make([]string, 0, len(raw))
			for _, it := range raw {
				switch t := it.(type) {
				case string:
					if t != "" {
						out = append(out, t)
					}
				case map[string]any:
					for _, key := range []string{"url", "src", "href", "name"} {
						if u, ok := t[key].(string); ok && u != "" {
							out = append(out, u)
							break
						}
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// firstSliceMaps returns the first path holding a list of objects.
func firstSliceMaps(m map[string]any, paths ...string) []map[string]any {
	for _, k := range paths {
		if raw, ok := lookupAny(m, k).([]any); ok {
			out := make([]map[string]any, 0, len(raw))
			for _, it := range raw {
				if obj, ok := it.(map[string]any); ok {
					out = append(out, obj)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func marshalRaw(v any, context string) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("context", context).Msg("marshal payload failed")
		return nil
	}
	return b
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

/********** place details mapper **********/

type placeData struct {
	PlaceID string
	Patch   domain.ListingPatch
}

// addressComponent returns the longText of the first component carrying one of types.
func addressComponent(p map[string]any, types ...string) string {
	comps, _ := lookupAny(p, "addressComponents").([]any)
	for _, want := range types {
		for _, c := range comps {
			obj, ok := c.(map[string]any)
			if !ok {
				continue
			}
			ts, _ := obj["types"].([]any)
			for _, t := range ts {
				if t == want {
					if s := lookupStr(obj, "longText"); s != "" {
						return s
					}
				}
			}
		}
	}
	return ""
}

func mapPlace(p map[string]any) placeData {
	d := placeData{PlaceID: deref(firstNonEmptyAlias(p, placeAliases, "place_id"))}
	d.Patch = domain.ListingPatch{
		Address:     firstNonEmptyAlias(p, placeAliases, "address"),
		Phone:       firstNonEmptyAlias(p, placeAliases, "phone"),
		Website:     firstNonEmptyAlias(p, placeAliases, "website"),
		Description: firstNonEmptyAlias(p, placeAliases, "description"),
		Lat:         getFloatFlexible(p, "location.latitude", "geometry.location.lat", "lat"),
		Lon:         getFloatFlexible(p, "location.longitude", "geometry.location.lng", "lng", "lon"),
		Rating:      getFloatFlexible(p, "rating"),
		ReviewCount: firstIntFlexible(p, "userRatingCount", "user_ratings_total"),
		City:        ptrStr(addressComponent(p, "locality", "postal_town", "administrative_area_level_2")),
		Area:        ptrStr(addressComponent(p, "sublocality_level_1", "sublocality", "neighborhood")),
	}
	if d.PlaceID != "" {
		id := d.PlaceID
		d.Patch.GooglePlaceID = &id
	}
	if s := firstNonEmptyAlias(p, placeAliases, "price"); s != nil {
		if pr, ok := priceLevels[*s]; ok {
			d.Patch.PriceRange = &pr
		}
	} else if f := getFloatFlexible(p, "price_level"); f != nil {
		if pr, ok := priceLevels[strconv.Itoa(int(*f))]; ok {
			d.Patch.PriceRange = &pr
		}
	}
	return d
}

/********** scrape mapper **********/

type scrapeData struct {
	Description *string
	Phone       *string
	Email       *string
	Images      []domain.Image
	FAQs        []domain.FAQ
	Policies    []domain.Policy
}

func mapScrape(d map[string]any) scrapeData {
	out := scrapeData{
		Description: firstNonEmptyAlias(d, scrapeAliases, "description"),
		Phone:       firstNonEmptyAlias(d, scrapeAliases, "phone"),
		Email:       firstNonEmptyAlias(d, scrapeAliases, "email"),
	}

	// Images: og:image first, then gallery; http(s) only, de-duplicated.
	var urls []string
	if s := firstNonEmptyAlias(d, scrapeAliases, "og_image"); s != nil {
		urls = append(urls, *s)
	}
	urls = append(urls, firstSliceStrings(d, "json.images", "json.gallery", "json.image_urls", "json.photos")...)
	seen := map[string]struct{}{}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if _, dup := seen[u]; dup || !isHTTPURL(u) {
			continue
		}
		seen[u] = struct{}{}
		out.Images = append(out.Images, domain.Image{
			URL:       u,
			Source:    domain.SourceFirecrawl,
			SortOrder: 100 + len(out.Images), // after curated images
		})
		if len(out.Images) == maxExtractedImages {
			break
		}
	}

	for i, f := range firstSliceMaps(d, "json.faqs", "json.faq", "json.frequently_asked_questions") {
		q := firstNonEmptyAlias(f, faqAliases, "question")
		a := firstNonEmptyAlias(f, faqAliases, "answer")
		if q == nil || a == nil {
			continue
		}
		out.FAQs = append(out.FAQs, domain.FAQ{Question: *q, Answer: *a, Source: domain.SourceFirecrawl, SortOrder: i})
	}

	out.Policies = mapPolicies(d)
	return out
}

// mapPolicies accepts either a list of {kind,title,body} or an object keyed by kind.
func mapPolicies(d map[string]any) []domain.Policy {
	var out []domain.Policy
	seen := map[string]int{}
	add := func(kind, title, body string) {
		if kind == "" {
			kind = title
		}
		kind = policyKind(kind)
		if body == "" || kind == "" {
			return
		}
		if title == "" {
			title = strings.ReplaceAll(kind, "_", " ")
			title = strings.ToUpper(title[:1]) + title[1:]
		}
		p := domain.Policy{Kind: kind, Title: title, Body: body, Source: domain.SourceFirecrawl}
		if i, ok := seen[kind]; ok {
			out[i] = p
			return
		}
		seen[kind] = len(out)
		out = append(out, p)
	}

	for _, m := range firstSliceMaps(d, "json.policies", "json.rules") {
		add(deref(firstNonEmptyAlias(m, policyAliases, "kind")),
			deref(firstNonEmptyAlias(m, policyAliases, "title")),
			deref(firstNonEmptyAlias(m, policyAliases, "body")))
	}
	if obj, ok := lookupAny(d, "json.policies").(map[string]any); ok {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := obj[k].(string); ok {
				add(k, "", strings.TrimSpace(s))
			}
		}
	}
	return out
}

// policyKind normalizes "Dress Code" / "dress-code" to "dress_code".
func policyKind(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_' || r == '/':
			return '_'
		}
		return -1
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

/********** review stats mapper **********/

type reviewStats struct {
	Rating *float64
	Count  *int
}

// mapReviewStats prefers the place-level score an actor reports alongside each
// review and falls back to averaging the individual ratings.
func mapReviewStats(items []map[string]any) reviewStats {
	var st reviewStats
	for _, it := range items {
		score := getFloatFlexible(it, reviewAliases["place_score"]...)
		count := firstIntFlexible(it, reviewAliases["place_count"]...)
		if score != nil && count != nil {
			r := round1(*score)
			st.Rating, st.Count = &r, count
			return st
		}
	}
	var sum float64
	n := 0
	for _, it := range items {
		if f := getFloatFlexible(it, reviewAliases["rating"]...); f != nil && *f > 0 {
			sum += *f
			n++
		}
	}
	if n > 0 {
		r := round1(sum / float64(n))
		st.Rating, st.Count = &r, &n
	}
	return st
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }

/********** merge **********/

// mergeMissing keeps the candidate values whose column is still empty on l.
// Rating and review count are refreshed whenever the candidate has them; name
// and slug are editorial and never touched.
func mergeMissing(l domain.Listing, c domain.ListingPatch) domain.ListingPatch {
	var out domain.ListingPatch
	fill := func(dst **string, cur *string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" && strings.TrimSpace(deref(cur)) == "" {
			*dst = v
		}
	}
	fill(&out.Description, l.Description, c.Description)
	fill(&out.Area, l.Area, c.Area)
	fill(&out.City, l.City, c.City)
	fill(&out.Address, l.Address, c.Address)
	fill(&out.Phone, l.Phone, c.Phone)
	fill(&out.Website, l.Website, c.Website)
	fill(&out.Email, l.Email, c.Email)
	fill(&out.PriceRange, l.PriceRange, c.PriceRange)
	fill(&out.GooglePlaceID, l.GooglePlaceID, c.GooglePlaceID)
	if l.Lat == nil && l.Lon == nil && c.Lat != nil && c.Lon != nil {
		out.Lat, out.Lon = c.Lat, c.Lon
	}
	out.Rating = c.Rating
	out.ReviewCount = c.ReviewCount
	return out
}

// longer returns whichever of a and b has more text.
func longer(a, b *string) *string {
	if len(strings.TrimSpace(deref(b))) > len(strings.TrimSpace(deref(a))) {
		return b
	}
	return a
}
