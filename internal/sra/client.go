package sra

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sra-harvest/internal/model"
)

const (
	DefaultBaseURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	DefaultPageSize = 10
)

var (
	// ErrUnavailable means the catalog lookup could not be reached at all.
	ErrUnavailable = errors.New("sra catalog unavailable")
	// ErrNoResults means the search term matched zero runs.
	ErrNoResults = errors.New("no runs matched the search term")
)

// Client talks to the NCBI E-utilities endpoints for the SRA database.
// A search is two calls: esearch turns a term into numeric UIDs, efetch
// resolves UIDs into runinfo rows carrying the run accession and metadata.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Email      string
	APIKey     string
	PageSize   int
}

func NewClient(email, apiKey string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Email:      email,
		APIKey:     apiKey,
		PageSize:   DefaultPageSize,
	}
}

// Stream yields candidates for one search in catalog order, paging the
// backing lookup lazily. It is finite and non-restartable; a fresh Search
// returns a fresh Stream.
type Stream struct {
	client  *Client
	term    string
	max     int
	count   int
	next    int // retstart of the next esearch page
	uids    []string
	pending []model.Candidate
	yielded int
}

// Search validates the term against the catalog and returns a lazy stream
// of candidates. A zero-hit term fails with ErrNoResults; an unreachable
// catalog fails with ErrUnavailable. maxCandidates caps the stream when
// positive.
func (c *Client) Search(ctx context.Context, term string, maxCandidates int) (*Stream, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("search term is required")
	}
	count, uids, err := c.esearch(ctx, term, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 0 || len(uids) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoResults, term)
	}
	return &Stream{
		client: c,
		term:   term,
		max:    maxCandidates,
		count:  count,
		next:   len(uids),
		uids:   uids,
	}, nil
}

// Next returns the next candidate in discovery order, or io.EOF when the
// catalog (or the configured cap) is exhausted.
func (s *Stream) Next(ctx context.Context) (model.Candidate, error) {
	if s.max > 0 && s.yielded >= s.max {
		return model.Candidate{}, io.EOF
	}
	for len(s.pending) == 0 {
		if len(s.uids) == 0 {
			if s.next >= s.count {
				return model.Candidate{}, io.EOF
			}
			count, uids, err := s.client.esearch(ctx, s.term, s.next)
			if err != nil {
				return model.Candidate{}, fmt.Errorf("page catalog at %d: %w", s.next, err)
			}
			if count < s.count {
				s.count = count
			}
			if len(uids) == 0 {
				return model.Candidate{}, io.EOF
			}
			s.next += len(uids)
			s.uids = uids
		}
		cands, err := s.client.runInfo(ctx, s.uids)
		if err != nil {
			return model.Candidate{}, fmt.Errorf("resolve run info: %w", err)
		}
		s.uids = nil
		s.pending = cands
	}

	cand := s.pending[0]
	s.pending = s.pending[1:]
	cand.Order = s.yielded
	s.yielded++
	return cand, nil
}

type eSearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDs     []string `xml:"IdList>Id"`
}

func (c *Client) esearch(ctx context.Context, term string, retstart int) (int, []string, error) {
	q := url.Values{}
	q.Set("db", "sra")
	q.Set("term", term)
	q.Set("retmax", fmt.Sprintf("%d", c.pageSize()))
	q.Set("retstart", fmt.Sprintf("%d", retstart))
	body, err := c.get(ctx, "esearch.fcgi", q)
	if err != nil {
		return 0, nil, err
	}
	var res eSearchResult
	if err := xml.Unmarshal(body, &res); err != nil {
		return 0, nil, fmt.Errorf("parse esearch response: %w", err)
	}
	return res.Count, res.IDs, nil
}

type sraRunInfo struct {
	XMLName xml.Name     `xml:"SraRunInfo"`
	Rows    []runInfoRow `xml:"Row"`
}

type runInfoRow struct {
	Run             string `xml:"Run"`
	SizeMB          int64  `xml:"size_MB"`
	DownloadPath    string `xml:"download_path"`
	ScientificName  string `xml:"ScientificName"`
	LibraryStrategy string `xml:"LibraryStrategy"`
	Spots           int64  `xml:"spots"`
	AvgLength       int64  `xml:"avgLength"`
}

func (c *Client) runInfo(ctx context.Context, uids []string) ([]model.Candidate, error) {
	q := url.Values{}
	q.Set("db", "sra")
	q.Set("id", strings.Join(uids, ","))
	q.Set("rettype", "runinfo")
	q.Set("retmode", "xml")
	body, err := c.get(ctx, "efetch.fcgi", q)
	if err != nil {
		return nil, err
	}
	var info sraRunInfo
	if err := xml.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parse runinfo response: %w", err)
	}

	cands := make([]model.Candidate, 0, len(info.Rows))
	for i, row := range info.Rows {
		acc := strings.TrimSpace(row.Run)
		if acc == "" {
			continue
		}
		uid := ""
		if i < len(uids) {
			uid = uids[i]
		}
		cands = append(cands, model.Candidate{
			Accession:       acc,
			UID:             uid,
			SizeMB:          row.SizeMB,
			DownloadURL:     strings.TrimSpace(row.DownloadPath),
			Organism:        strings.TrimSpace(row.ScientificName),
			LibraryStrategy: strings.TrimSpace(row.LibraryStrategy),
			Spots:           row.Spots,
			AvgLength:       row.AvgLength,
		})
	}
	return cands, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if c.APIKey != "" {
		q.Set("api_key", c.APIKey)
	}
	if c.Email != "" {
		q.Set("email", c.Email)
	}
	reqURL := strings.TrimSuffix(base, "/") + "/" + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", userAgent(c.Email))

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	return body, nil
}

func (c *Client) pageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return DefaultPageSize
}

func userAgent(email string) string {
	if strings.TrimSpace(email) == "" {
		return "sra-harvest"
	}
	return "sra-harvest (contact: " + strings.TrimSpace(email) + ")"
}
