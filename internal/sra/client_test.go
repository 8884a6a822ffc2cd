package sra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sra-harvest/internal/model"
)

func newCatalogServer(t *testing.T, count int, accessions []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "esearch.fcgi"):
			retstart := 0
			fmt.Sscanf(r.URL.Query().Get("retstart"), "%d", &retstart)
			retmax := 0
			fmt.Sscanf(r.URL.Query().Get("retmax"), "%d", &retmax)

			var ids strings.Builder
			for i := retstart; i < retstart+retmax && i < count; i++ {
				fmt.Fprintf(&ids, "<Id>%d</Id>", 1000+i)
			}
			fmt.Fprintf(w, "<eSearchResult><Count>%d</Count><IdList>%s</IdList></eSearchResult>", count, ids.String())
		case strings.Contains(r.URL.Path, "efetch.fcgi"):
			uids := strings.Split(r.URL.Query().Get("id"), ",")
			var rows strings.Builder
			for _, uid := range uids {
				idx := 0
				fmt.Sscanf(uid, "%d", &idx)
				idx -= 1000
				if idx < 0 || idx >= len(accessions) {
					continue
				}
				fmt.Fprintf(&rows,
					"<Row><Run>%s</Run><size_MB>12</size_MB><ScientificName>Mus musculus</ScientificName><LibraryStrategy>ChIP-Seq</LibraryStrategy></Row>",
					accessions[idx])
			}
			fmt.Fprintf(w, "<SraRunInfo>%s</SraRunInfo>", rows.String())
		default:
			http.NotFound(w, r)
		}
	}))
}

func collect(t *testing.T, s *Stream) []model.Candidate {
	t.Helper()
	got := []model.Candidate{}
	for {
		cand, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return got
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if cand.Order != len(got) {
			t.Fatalf("expected discovery order %d, got %d", len(got), cand.Order)
		}
		got = append(got, cand)
	}
}

func TestSearch_PagesInCatalogOrder(t *testing.T) {
	accs := []string{"SRR1", "SRR2", "SRR3", "SRR4", "SRR5"}
	srv := newCatalogServer(t, len(accs), accs)
	defer srv.Close()

	c := NewClient("test@example.org", "")
	c.BaseURL = srv.URL
	c.PageSize = 2

	stream, err := c.Search(context.Background(), "mouse chip-seq", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := collect(t, stream)
	if len(got) != len(accs) {
		t.Fatalf("expected %d candidates, got %d", len(accs), len(got))
	}
	for i, acc := range accs {
		if got[i].Accession != acc {
			t.Fatalf("order mismatch at %d: got %s want %s", i, got[i].Accession, acc)
		}
	}
	if got[0].Organism != "Mus musculus" || got[0].SizeMB != 12 {
		t.Fatalf("run info metadata not carried: %+v", got[0])
	}
}

func TestSearch_HonorsMaxCandidates(t *testing.T) {
	accs := []string{"SRR1", "SRR2", "SRR3", "SRR4"}
	srv := newCatalogServer(t, len(accs), accs)
	defer srv.Close()

	c := NewClient("test@example.org", "")
	c.BaseURL = srv.URL
	c.PageSize = 10

	stream, err := c.Search(context.Background(), "anything", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := collect(t, stream)
	if len(got) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(got))
	}
}

func TestSearch_NoResults(t *testing.T) {
	srv := newCatalogServer(t, 0, nil)
	defer srv.Close()

	c := NewClient("test@example.org", "")
	c.BaseURL = srv.URL

	_, err := c.Search(context.Background(), "no such organism", 0)
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestSearch_UnavailableCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("test@example.org", "")
	c.BaseURL = srv.URL

	_, err := c.Search(context.Background(), "anything", 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
