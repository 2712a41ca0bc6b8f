package engine

// --- Platforms ---

// Service identifies the video platform a catalog url points at.
type Service int

const (
	ServiceUnknown Service = iota
	ServiceYouTube
	ServiceNicoNico
	ServiceBilibili
)

// serviceNames maps a Service to the name VocaDB stores in songurls.service.
var serviceNames = map[Service]string{
	ServiceYouTube:  "Youtube",
	ServiceNicoNico: "NicoNicoDouga",
	ServiceBilibili: "Bilibili",
}

func (s Service) String() string {
	if name, ok := serviceNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseService returns the Service with the given catalog name, or ServiceUnknown.
func ParseService(name string) Service {
	for s, n := range serviceNames {
		if n == name {
			return s
		}
	}
	return ServiceUnknown
}

// --- Enrichment results ---

// Outcome classifies the result of a single statistics lookup.
type Outcome int

const (
	OutcomeUnknown  Outcome = iota // transport or parse failure; nothing is written
	OutcomeSuccess                 // stats fetched
	OutcomeDeleted                 // video existed but was removed; stats are zeroed
	OutcomeNotFound                // video never existed upstream; row is tombstoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeNotFound:
		return "not_found"
	}
	return "unknown"
}

// Stats holds platform statistics. A nil field was not reported by the platform.
type Stats struct {
	Views     *int64 `json:"views,omitempty"`
	Likes     *int64 `json:"likes,omitempty"`
	Dislikes  *int64 `json:"dislikes,omitempty"`
	Favorites *int64 `json:"favorites,omitempty"`
}

// Empty reports whether no field is set.
func (s Stats) Empty() bool {
	return s.Views == nil && s.Likes == nil && s.Dislikes == nil && s.Favorites == nil
}

// ZeroStats is what a deleted video reports on platforms with all four counters.
func ZeroStats() Stats {
	return Stats{Views: Int64(0), Likes: Int64(0), Dislikes: Int64(0), Favorites: Int64(0)}
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Result is the uniform per-id output of every fetcher.
type Result struct {
	ID      string
	Outcome Outcome
	Stats   Stats
}
