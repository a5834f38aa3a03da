package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/knowledgeops/kbmigrate/internal/logger"
)

func newTestSharePoint(ts *httptest.Server) *SharePoint {
	c := NewClient(ts.URL, nil, 5*time.Second, 1, logger.Nop())
	return NewSharePoint(c, "site-1", logger.Nop())
}

func TestListItem_PageID(t *testing.T) {
	tests := []struct {
		name   string
		eTag   string
		expect string
	}{
		{"guid with version", `"8f2c1a7e-0001,4"`, "8f2c1a7e-0001"},
		{"no version", `"8f2c1a7e-0001"`, "8f2c1a7e-0001"},
		{"unquoted", "plain,2", "plain"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			li := ListItem{ETag: tc.eTag}
			if got := li.PageID(); got != tc.expect {
				t.Errorf("PageID() = %q, want %q", got, tc.expect)
			}
		})
	}
}

func TestSharePoint_ListPages_Pagination(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"value":[{"eTag":"\"id-3,1\"","webUrl":"https://x/sites/kb/SitePages/c.aspx","fields":{"Title":"C"}}]}`)
			return
		}
		fmt.Fprintf(w, `{"value":[
			{"eTag":"\"id-1,1\"","webUrl":"https://x/sites/kb/SitePages/a.aspx","fields":{"Title":"A"}},
			{"eTag":"\"id-2,1\"","webUrl":"https://x/sites/kb/SitePages/b.aspx","fields":{"Title":"B"}}],
			"@odata.nextLink":"%s/next?page=2"}`, ts.URL)
	}))
	defer ts.Close()

	pages, err := newTestSharePoint(ts).ListPages(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListPages returned error: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	if pages[0].Fields.Title != "A" || pages[2].Fields.Title != "C" {
		t.Errorf("pages out of order: %v", pages)
	}
	if pages[0].PageID() != "id-1" {
		t.Errorf("PageID = %q, want id-1", pages[0].PageID())
	}
}

func TestSharePoint_ListPages_PartialOnFailure(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprintf(w, `{"value":[{"eTag":"\"id-1,1\"","webUrl":"https://x/a.aspx","fields":{"Title":"A"}}],"@odata.nextLink":"%s/next?page=2"}`, ts.URL)
	}))
	defer ts.Close()

	pages, err := newTestSharePoint(ts).ListPages(context.Background(), 1)
	if err == nil {
		t.Fatal("ListPages should report the pagination failure")
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want the 1 gathered before the failure", len(pages))
	}
}

func TestSharePoint_DriveItemDownloadURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/sites/site-1/drives/d1/root:/folder/my%20file.png"
		if r.URL.EscapedPath() != want {
			t.Errorf("path = %q, want %q", r.URL.EscapedPath(), want)
		}
		fmt.Fprint(w, `{"@microsoft.graph.downloadUrl":"https://download.example/file"}`)
	}))
	defer ts.Close()

	got, err := newTestSharePoint(ts).DriveItemDownloadURL(context.Background(), "d1", "folder/my file.png")
	if err != nil {
		t.Fatalf("DriveItemDownloadURL returned error: %v", err)
	}
	if got != "https://download.example/file" {
		t.Errorf("url = %q", got)
	}
}

func TestSharePoint_DriveItemDownloadURL_Missing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer ts.Close()

	_, err := newTestSharePoint(ts).DriveItemDownloadURL(context.Background(), "d1", "file.png")
	if err == nil {
		t.Fatal("DriveItemDownloadURL should fail when no download URL is returned")
	}
}

func TestSharePoint_ListDrives(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sites/site-1/drives" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"value":[
			{"id":"d1","name":"Site Assets","webUrl":"https://x/sites/kb/SiteAssets"},
			{"id":"d2","name":"Documents","webUrl":"https://x/sites/kb/Shared%20Documents"}]}`)
	}))
	defer ts.Close()

	drives, err := newTestSharePoint(ts).ListDrives(context.Background())
	if err != nil {
		t.Fatalf("ListDrives returned error: %v", err)
	}
	if len(drives) != 2 || drives[0].ID != "d1" || drives[1].Name != "Documents" {
		t.Errorf("drives = %+v", drives)
	}
}

func TestSharePoint_GraphImagePrefix(t *testing.T) {
	c := NewClient("https://graph.example/v1.0", nil, time.Second, 1, logger.Nop())
	sp := NewSharePoint(c, "site-1", logger.Nop())
	want := "https://graph.example/v1.0/sites/site-1/drive/root:"
	if got := sp.GraphImagePrefix(); got != want {
		t.Errorf("GraphImagePrefix() = %q, want %q", got, want)
	}
}
