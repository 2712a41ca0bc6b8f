package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/anatolykoptev/go_vocaviews/internal/engine"
)

// getthumbinfo statuses and error codes.
const (
	nicoStatusOK    = "ok"
	nicoStatusFail  = "fail"
	nicoErrDeleted  = "DELETED"
	nicoErrNotFound = "NOT_FOUND"
)

type nicoThumbResponse struct {
	Status string `xml:"status,attr"`
	Thumb  struct {
		ViewCounter string `xml:"view_counter"`
	} `xml:"thumb"`
	Error struct {
		Code string `xml:"code"`
	} `xml:"error"`
}

// ParseNicoNico classifies a getthumbinfo document by its status attribute.
// Only views are reported; a non-numeric counter counts as zero.
func ParseNicoNico(body []byte) (engine.Outcome, engine.Stats) {
	var resp nicoThumbResponse
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&resp); err != nil {
		return engine.OutcomeUnknown, engine.Stats{}
	}

	switch resp.Status {
	case nicoStatusOK:
		views, err := strconv.ParseInt(strings.TrimSpace(resp.Thumb.ViewCounter), 10, 64)
		if err != nil {
			views = 0
		}
		return engine.OutcomeSuccess, engine.Stats{Views: engine.Int64(views)}
	case nicoStatusFail:
		switch strings.TrimSpace(resp.Error.Code) {
		case nicoErrDeleted:
			return engine.OutcomeDeleted, engine.Stats{Views: engine.Int64(0)}
		case nicoErrNotFound:
			return engine.OutcomeNotFound, engine.Stats{}
		}
	}
	return engine.OutcomeUnknown, engine.Stats{}
}

// NicoNicoFetcher looks up videos one by one via getthumbinfo.
type NicoNicoFetcher struct {
	client  *http.Client
	baseURL string
	gate    *engine.Gate
}

// NewNicoNicoFetcher creates a fetcher.
func NewNicoNicoFetcher(o Options) *NicoNicoFetcher {
	return &NicoNicoFetcher{
		client:  o.client(),
		baseURL: strings.TrimRight(o.baseURL(engine.NicoNicoAPIURL), "/"),
		gate:    o.gate(),
	}
}

func (f *NicoNicoFetcher) Service() engine.Service { return engine.ServiceNicoNico }

// FetchMany returns one result per id. Per-id failures become OutcomeUnknown.
func (f *NicoNicoFetcher) FetchMany(ctx context.Context, vids []string) ([]engine.Result, error) {
	return fetchEach(ctx, f.Service(), f.gate, vids, f.get, ParseNicoNico)
}

func (f *NicoNicoFetcher) get(ctx context.Context, vid string) ([]byte, error) {
	body, status, err := engine.Get(ctx, f.client, f.baseURL+"/"+url.PathEscape(vid), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, newStatusError(status, body)
	}
	return body, nil
}
