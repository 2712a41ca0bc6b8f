package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

// Song is a catalog record. JSON columns hold the VocaDB payload verbatim.
type Song struct {
	ID                  int64      `db:"id"`
	OriginalVersionID   *int64     `db:"original_version_id"`
	Name                string     `db:"name"`
	DefaultName         string     `db:"default_name"`
	DefaultNameLanguage string     `db:"default_name_language"`
	ArtistString        string     `db:"artist_string"`
	LengthSeconds       int64      `db:"length_seconds"`
	PVServices          string     `db:"pv_services"`
	MinMilliBpm         *int64     `db:"min_milli_bpm"`
	MaxMilliBpm         *int64     `db:"max_milli_bpm"`
	SongType            string     `db:"song_type"`
	FavoritedTimes      int64      `db:"favorited_times"`
	RatingScore         int64      `db:"rating_score"`
	CreateDate          *time.Time `db:"create_date"`
	PublishDate         *time.Time `db:"publish_date"`
	Status              string     `db:"status"`
	Version             int64      `db:"version"`
	AdditionalNames     string     `db:"additional_names"`
	PVs                 JSON       `db:"pvs"`
	PVCount             int        `db:"pv_count"`
	Views               JSON       `db:"views"`
	Artists             JSON       `db:"artists"`
	Tags                JSON       `db:"tags"`
}

// SongURL is one video reference of a song on one platform.
// Views == nil && !Tombstoned means the row has not been enriched yet.
type SongURL struct {
	ID          int64      `db:"id"`
	PVID        int64      `db:"pv_id"`
	SongID      int64      `db:"song_id"`
	URL         string     `db:"url"`
	Service     string     `db:"service"`
	Views       *int64     `db:"views"`
	Likes       *int64     `db:"likes"`
	Dislikes    *int64     `db:"dislikes"`
	Favorites   *int64     `db:"favorites"`
	Status      *string    `db:"status"`
	Tombstoned  bool       `db:"tombstoned"`
	PublishedAt *time.Time `db:"published_at"`
}

// SongURLUpdate is the write derived from one fetch result.
type SongURLUpdate struct {
	ID      int64
	Outcome engine.Outcome
	Stats   engine.Stats
}

// SongViewsUpdate replaces the views summary of a song.
type SongViewsUpdate struct {
	SongID int64
	Views  JSON
}

// Filter narrows a batch selection. The zero value selects everything.
type Filter struct {
	Service           string // songurls.service equality
	Unprocessed       bool   // songurls: views IS NULL AND status IS NULL AND NOT tombstoned
	SongsWithoutViews bool   // songs: views IS NULL AND has at least one PV
}

// JSON is a raw JSON document stored in a TEXT (sqlite) or JSONB (postgres) column.
// A nil JSON is SQL NULL.
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSON(nil), v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("store.JSON: cannot scan %T", src)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append(JSON(nil), data...)
	return nil
}

// Decode unmarshals the document into v. A nil JSON leaves v untouched.
func (j JSON) Decode(v any) error {
	if j == nil {
		return nil
	}
	return json.Unmarshal(j, v)
}
