package inlineedit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/session"
	"github.com/hazyhaar/wikiedit/shield"
)

type sessionJSON struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Excerpt string `json:"excerpt"`
	Section int    `json:"section"`
	EditURL string `json:"edit_url"`
	Error   string `json:"error"`
}

func doJSON(t *testing.T, method, url string, body any, header http.Header, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHTTP_EditFlow(t *testing.T) {
	svc := testService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	var view viewResponse
	if code := doJSON(t, "POST", srv.URL+"/api/views", map[string]string{"title": "Springfield"}, nil, &view); code != http.StatusCreated {
		t.Fatalf("open view: status %d", code)
	}
	if view.ID == "" || len(view.Fragments) != 5 {
		t.Fatalf("view = %+v", view)
	}
	var fragID string
	for _, f := range view.Fragments {
		if f.Text == "Intro paragraph about Springfield." {
			fragID = f.ID
		}
	}

	var sess sessionJSON
	code := doJSON(t, "POST", srv.URL+"/api/views/"+view.ID+"/fragments/"+fragID+"/edit", nil, nil, &sess)
	if code != http.StatusOK || sess.State != "editing" {
		t.Fatalf("begin edit: status %d, session %+v", code, sess)
	}

	resp, err := http.Get(srv.URL + "/api/views/" + view.ID + "/html")
	if err != nil {
		t.Fatal(err)
	}
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(page), `contenteditable="true"`) {
		t.Errorf("view HTML has no editing surface:\n%s", page)
	}

	header := http.Header{shield.UserHeader: {"bob"}}
	code = doJSON(t, "POST", srv.URL+"/api/sessions/"+sess.ID+"/submit",
		map[string]any{"text": "Springfield is a town.", "summary": "tighten intro", "minor": true}, header, &sess)
	if code != http.StatusOK || sess.State != "success" {
		t.Fatalf("submit: status %d, session %+v", code, sess)
	}

	hist, _ := svc.Store().History(t.Context(), "Springfield", 1)
	if hist[0].Author != "bob" || !hist[0].Minor || hist[0].Summary != "tighten intro #wikiedit" {
		t.Errorf("revision = %+v", hist[0])
	}
}

func TestHTTP_Errors(t *testing.T) {
	svc := testService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	var e map[string]string
	if code := doJSON(t, "GET", srv.URL+"/api/views/view_nope", nil, nil, &e); code != http.StatusNotFound {
		t.Errorf("unknown view: %d", code)
	}
	if code := doJSON(t, "POST", srv.URL+"/api/views", map[string]string{"title": "Nowhere"}, nil, &e); code != http.StatusNotFound {
		t.Errorf("missing page: %d", code)
	}
	if code := doJSON(t, "POST", srv.URL+"/api/views", map[string]string{}, nil, &e); code != http.StatusBadRequest {
		t.Errorf("empty title: %d", code)
	}
	if code := doJSON(t, "POST", srv.URL+"/api/views", map[string]string{"title": "Spring{{field}}"}, nil, &e); code != http.StatusBadRequest {
		t.Errorf("invalid title: %d", code)
	}
	if code := doJSON(t, "POST", srv.URL+"/api/sessions/ses_nope/cancel", nil, nil, &e); code != http.StatusNotFound {
		t.Errorf("unknown session: %d", code)
	}

	var view viewResponse
	doJSON(t, "POST", srv.URL+"/api/views", map[string]string{"title": "Springfield"}, nil, &view)
	edit := srv.URL + "/api/views/" + view.ID + "/fragments/" + view.Fragments[0].ID + "/edit"
	doJSON(t, "POST", edit, nil, nil, nil)
	if code := doJSON(t, "POST", edit, nil, nil, &e); code != http.StatusConflict {
		t.Errorf("busy fragment: %d", code)
	}
}

func TestHTTP_EditConflict(t *testing.T) {
	svc := testService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	var view viewResponse
	doJSON(t, "POST", srv.URL+"/api/views", map[string]string{"title": "Springfield"}, nil, &view)
	var fragID string
	for _, f := range view.Fragments {
		if f.Text == "Intro paragraph about Springfield." {
			fragID = f.ID
		}
	}

	// Someone else saves after the view was opened.
	if _, err := svc.Store().WriteSource(t.Context(), session.WriteRequest{Title: "Springfield", Text: springfield + "\nA new line."}); err != nil {
		t.Fatal(err)
	}

	var sess sessionJSON
	doJSON(t, "POST", srv.URL+"/api/views/"+view.ID+"/fragments/"+fragID+"/edit", nil, nil, &sess)
	var failed struct {
		Error   string      `json:"error"`
		Session sessionJSON `json:"session"`
	}
	code := doJSON(t, "POST", srv.URL+"/api/sessions/"+sess.ID+"/submit", map[string]any{"text": "Springfield is a town."}, nil, &failed)
	if code != http.StatusConflict {
		t.Fatalf("submit on a stale view: %d %+v", code, failed)
	}
	if failed.Session.State != "saving" || !strings.Contains(failed.Error, "edit conflict") {
		t.Errorf("failed submit = %+v", failed)
	}
	hist, _ := svc.Store().History(t.Context(), "Springfield", 5)
	if len(hist) != 2 {
		t.Errorf("revisions = %d, want the seed and the other save", len(hist))
	}
}

func TestHTTP_ViewStyle(t *testing.T) {
	svc := testService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	var view viewResponse
	doJSON(t, "POST", srv.URL+"/api/views", map[string]string{"title": "Springfield"}, nil, &view)
	resp, err := http.Get(srv.URL + "/api/views/" + view.ID + "/style.css")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("content type %q", ct)
	}
	css, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(css), ".wikiedit-form") {
		t.Errorf("view stylesheet = %s", css)
	}

	resp, err = http.Get(srv.URL + "/api/views/view_nope/style.css")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown view style: %d", resp.StatusCode)
	}
}

func TestHTTP_Handover(t *testing.T) {
	svc := testService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	var view viewResponse
	doJSON(t, "POST", srv.URL+"/api/views", map[string]string{"title": "Springfield"}, nil, &view)
	var fragID string
	for _, f := range view.Fragments {
		if f.Text == "The town was founded in 1796." {
			fragID = f.ID
			break
		}
	}
	var sess sessionJSON
	doJSON(t, "POST", srv.URL+"/api/views/"+view.ID+"/fragments/"+fragID+"/edit", nil, nil, &sess)
	if sess.State != "handover" || sess.Section != 1 || !strings.Contains(sess.EditURL, "section=1") {
		t.Errorf("session = %+v", sess)
	}
}

func TestHTTP_LocateAndAssets(t *testing.T) {
	svc := testService(t)
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	var res LocateResult
	q := url.Values{"title": {"Springfield"}, "text": {"Grew quickly."}}
	if code := doJSON(t, "GET", srv.URL+"/api/locate?"+q.Encode(), nil, nil, &res); code != http.StatusOK {
		t.Fatalf("locate: %d", code)
	}
	if !res.Found || res.Excerpt == nil || res.Excerpt.LineNumber != 6 {
		t.Errorf("locate = %+v", res)
	}

	resp, err := http.Get(srv.URL + "/assets/wikiedit.css")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("content type %q", ct)
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Error("shield stack not applied")
	}
	css, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(css), ".wikiedit-form") {
		t.Errorf("stylesheet = %s", css)
	}
}
