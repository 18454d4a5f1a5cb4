package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/webreader/internal/reader"
)

var errURLRequired = errors.New("URL required")

// readerParams are the query keys consumed by the reader. Anything else on a
// GET request belongs to the target URL.
var readerParams = map[string]struct{}{
	"engine": {}, "js": {}, "nocache": {}, "target": {}, "remove": {},
	"wait": {}, "links": {}, "images": {}, "full": {}, "timeout": {},
}

// fetchRequestFromQuery builds a request from the GET path remainder and query.
func fetchRequestFromQuery(path string, query url.Values) (reader.FetchRequest, error) {
	target := strings.TrimSpace(path)
	if target == "" {
		return reader.FetchRequest{}, errURLRequired
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}
	if passthrough := passthroughQuery(query); passthrough != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + passthrough
	}

	req := reader.FetchRequest{
		URL:             target,
		Engine:          engineFor(query.Get("engine"), parseBool(query.Get("js"))),
		NoCache:         parseBool(query.Get("nocache")),
		TargetSelector:  strings.TrimSpace(query.Get("target")),
		RemoveSelectors: splitList(query.Get("remove")),
		WaitForSelector: strings.TrimSpace(query.Get("wait")),
		IncludeLinks:    parseBool(query.Get("links")),
		IncludeImages:   parseBool(query.Get("images")),
		FullContent:     parseBool(query.Get("full")),
	}
	if raw := query.Get("timeout"); raw != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return reader.FetchRequest{}, fmt.Errorf("invalid timeout %q: must be milliseconds", raw)
		}
		req.Timeout = millis(ms)
	}
	return req, nil
}

func passthroughQuery(query url.Values) string {
	rest := url.Values{}
	for key, values := range query {
		if _, ok := readerParams[key]; ok {
			continue
		}
		rest[key] = values
	}
	return rest.Encode()
}

// readBody is the POST / payload.
type readBody struct {
	URL     string     `json:"url"`
	Engine  string     `json:"engine"`
	JS      bool       `json:"js"`
	Full    bool       `json:"full"`
	Target  string     `json:"target"`
	Remove  stringList `json:"remove"`
	Wait    string     `json:"wait"`
	Links   bool       `json:"links"`
	Images  bool       `json:"images"`
	NoCache bool       `json:"nocache"`
	Timeout *int64     `json:"timeout"`
}

func (b readBody) fetchRequest() (reader.FetchRequest, error) {
	if strings.TrimSpace(b.URL) == "" {
		return reader.FetchRequest{}, errURLRequired
	}
	req := reader.FetchRequest{
		URL:             strings.TrimSpace(b.URL),
		Engine:          engineFor(b.Engine, b.JS),
		NoCache:         b.NoCache,
		TargetSelector:  strings.TrimSpace(b.Target),
		RemoveSelectors: []string(b.Remove),
		WaitForSelector: strings.TrimSpace(b.Wait),
		IncludeLinks:    b.Links,
		IncludeImages:   b.Images,
		FullContent:     b.Full,
	}
	if b.Timeout != nil {
		req.Timeout = millis(*b.Timeout)
	}
	return req, nil
}

// stringList accepts either a JSON array of strings or a comma-separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = compact(list)
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("remove must be a string or array of strings: %w", err)
	}
	*l = splitList(single)
	return nil
}

// engineFor picks the requested engine. An empty result defers to the service default.
func engineFor(engine string, js bool) reader.Engine {
	if engine = strings.TrimSpace(engine); engine != "" {
		return reader.Engine(engine)
	}
	if js {
		return reader.EngineRendered
	}
	return ""
}

func parseBool(raw string) bool {
	return raw == "true" || raw == "1"
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return compact(strings.Split(raw, ","))
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// maxRequestTimeout caps per-request overrides at the handler deadline.
const maxRequestTimeout = defaultHandlerTimeout

// millis converts a millisecond override. Non-positive values mean "use the default";
// values above maxRequestTimeout are clamped to it.
func millis(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	if ms > maxRequestTimeout.Milliseconds() {
		return maxRequestTimeout
	}
	return time.Duration(ms) * time.Millisecond
}
