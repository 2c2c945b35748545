package recognizer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if string(data) != "png-bytes" || hdr.Filename != "week.png" {
			t.Errorf("got %q named %q", data, hdr.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"slots":[{"subject_name":"Math","day":1,"start_time":"09:00","end_time":"10:00","faculty":"Dr. Rao"}]}`)
	}))
	defer srv.Close()

	slots, err := New(srv.URL+"/", false).Extract(context.Background(), strings.NewReader("png-bytes"), "week.png")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(slots) != 1 || slots[0].SubjectName != "Math" || slots[0].Day != 1 || slots[0].Faculty != "Dr. Rao" {
		t.Fatalf("slots: %+v", slots)
	}
}

func TestExtractErrors(t *testing.T) {
	tests := map[string]struct {
		status int
		body   string
		want   error
	}{
		"empty":     {http.StatusOK, `{"slots":[]}`, ErrEmptyExtraction},
		"malformed": {http.StatusOK, `not json`, nil},
		"upstream":  {http.StatusBadGateway, `model crashed`, nil},
	}
	for name, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, tc.body)
		}))
		_, err := New(srv.URL, false).Extract(context.Background(), strings.NewReader("img"), "")
		srv.Close()
		if err == nil {
			t.Fatalf("%s: expected an error", name)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", name, err, tc.want)
		}
	}
}

func TestExtractSkipMode(t *testing.T) {
	c := New("http://unused", true)
	if _, err := c.Extract(context.Background(), strings.NewReader("img"), "a.png"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("want ErrDisabled, got %v", err)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health in skip mode: %v", err)
	}
}

func TestExtractRejectsEmptyImage(t *testing.T) {
	if _, err := New("http://unused", false).Extract(context.Background(), strings.NewReader(""), "a.png"); err == nil {
		t.Fatalf("expected an error for an empty image")
	}
}
