package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/hazyhaar/wikiedit/inlineedit/internal/session"
	"github.com/hazyhaar/wikiedit/inlineedit/internal/wiki"
)

// fakeAPI is a minimal api.php.
type fakeAPI struct {
	mu         sync.Mutex
	source     map[string]string
	edits      []map[string]string
	staleToken bool
	tokenCalls int
	rev        int64
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Form.Get("format") != "json" || r.Form.Get("formatversion") != "2" {
		http.Error(w, "bad format", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	reply := func(v any) { json.NewEncoder(w).Encode(v) }
	apiErr := func(code, info string) { reply(map[string]any{"error": map[string]string{"code": code, "info": info}}) }

	switch r.Form.Get("action") {
	case "query":
		switch {
		case r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "csrf":
			f.tokenCalls++
			token := "+\\"
			if c, err := r.Cookie("wikisession"); err == nil && c.Value == "bot" {
				token = "bottoken+\\"
			}
			reply(map[string]any{"query": map[string]any{"tokens": map[string]string{"csrftoken": token}}})
		case r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "login":
			reply(map[string]any{"query": map[string]any{"tokens": map[string]string{"logintoken": "lt+\\"}}})
		case r.Form.Get("prop") == "info":
			title := r.Form.Get("titles")
			page := map[string]any{"title": title, "ns": 0, "contentmodel": "wikitext", "pagelanguage": "en", "lastrevid": f.rev}
			if _, ok := f.source[title]; !ok {
				page = map[string]any{"title": title, "ns": 0, "missing": true}
			}
			reply(map[string]any{"query": map[string]any{"pages": []any{page}}})
		default:
			apiErr("badquery", "unexpected query")
		}
	case "parse":
		if r.Form.Get("prop") == "wikitext" {
			src, ok := f.source[r.Form.Get("page")]
			if !ok {
				apiErr("missingtitle", "The page you specified doesn't exist.")
				return
			}
			reply(map[string]any{"parse": map[string]any{"title": r.Form.Get("page"), "wikitext": src}})
			return
		}
		if page := r.Form.Get("page"); page != "" {
			reply(map[string]any{"parse": map[string]any{"title": page, "text": `<div class="mw-parser-output"><p>` + f.source[page] + "</p></div>"}})
			return
		}
		if r.Method != http.MethodPost || !r.Form.Has("wrapoutputclass") || r.Form.Get("contentmodel") != "wikitext" {
			apiErr("badparse", "render must be a POST without wrapper")
			return
		}
		reply(map[string]any{"parse": map[string]any{"title": r.Form.Get("title"), "text": "<p>" + r.Form.Get("text") + "\n</p>"}})
	case "edit":
		if r.Method != http.MethodPost {
			apiErr("mustbeposted", "POST required")
			return
		}
		if f.staleToken {
			f.staleToken = false
			apiErr("badtoken", "Invalid CSRF token.")
			return
		}
		if base := r.PostForm.Get("baserevid"); base != "" && base != strconv.FormatInt(f.rev, 10) {
			apiErr("editconflict", "Edit conflict.")
			return
		}
		rec := map[string]string{}
		for k := range r.PostForm {
			rec[k] = r.PostForm.Get(k)
		}
		f.edits = append(f.edits, rec)
		f.source[r.PostForm.Get("title")] = r.PostForm.Get("text")
		f.rev++
		reply(map[string]any{"edit": map[string]any{"result": "Success", "newrevid": f.rev}})
	case "login":
		if r.PostForm.Get("lgname") == "Bot@wikiedit" && r.PostForm.Get("lgpassword") == "secret" && r.PostForm.Get("lgtoken") == "lt+\\" {
			http.SetCookie(w, &http.Cookie{Name: "wikisession", Value: "bot", Path: "/"})
			reply(map[string]any{"login": map[string]string{"result": "Success"}})
			return
		}
		reply(map[string]any{"login": map[string]string{"result": "Failed", "reason": "Incorrect username or password entered."}})
	default:
		apiErr("badvalue", "unknown action")
	}
}

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{source: map[string]string{"Springfield": "Intro.\nThe sky is blue."}, rev: 42}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	cfg.APIURL = srv.URL + "/w/api.php"
	cfg.AllowPrivate = true
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c, api
}

func TestClient_ReadSource(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	src, err := c.ReadSource(context.Background(), "Springfield")
	if err != nil {
		t.Fatal(err)
	}
	if src != "Intro.\nThe sky is blue." {
		t.Errorf("source %q", src)
	}
	if _, err := c.ReadSource(context.Background(), "Nowhere"); !errors.Is(err, wiki.ErrPageNotFound) {
		t.Errorf("missing page: %v", err)
	}
}

func TestClient_FetchPage(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	p, err := c.FetchPage(context.Background(), "Springfield")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Editable() || p.Language != "en" || p.RevisionID != "42" {
		t.Errorf("page %+v", p)
	}
	if p.HTML == "" {
		t.Error("no html")
	}
	if _, err := c.FetchPage(context.Background(), "Nowhere"); !errors.Is(err, wiki.ErrPageNotFound) {
		t.Errorf("missing page: %v", err)
	}
}

func TestClient_Render(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	out, err := c.Render(context.Background(), "Springfield", "The sky is red.")
	if err != nil {
		t.Fatal(err)
	}
	if out != "<p>The sky is red.\n</p>" {
		t.Errorf("render %q", out)
	}
}

func TestClient_WriteSource(t *testing.T) {
	c, api := newTestClient(t, Config{})
	rev, err := c.WriteSource(context.Background(), session.WriteRequest{
		Title:   "Springfield",
		Text:    "Intro.\nThe sky is red.",
		Summary: "/* History */ x #wikiedit",
		Minor:   true,
		Tags:    []string{"wikiedit", "inline"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rev != "43" {
		t.Errorf("revision %q, want 43", rev)
	}
	if len(api.edits) != 1 {
		t.Fatalf("edits %d", len(api.edits))
	}
	e := api.edits[0]
	if e["token"] != "+\\" || e["minor"] != "1" || e["tags"] != "wikiedit|inline" || e["summary"] != "/* History */ x #wikiedit" {
		t.Errorf("edit params %v", e)
	}

	// Token is cached between writes.
	_, _ = c.WriteSource(context.Background(), session.WriteRequest{Title: "Springfield", Text: "x"})
	if api.tokenCalls != 1 {
		t.Errorf("token fetched %d times", api.tokenCalls)
	}
	if api.edits[1]["notminor"] != "1" {
		t.Errorf("non-minor edit params %v", api.edits[1])
	}
}

func TestClient_WriteSource_RefreshesStaleToken(t *testing.T) {
	c, api := newTestClient(t, Config{})
	api.staleToken = true
	if _, err := c.WriteSource(context.Background(), session.WriteRequest{Title: "Springfield", Text: "y"}); err != nil {
		t.Fatal(err)
	}
	if len(api.edits) != 1 || api.tokenCalls != 2 {
		t.Errorf("edits %d token calls %d", len(api.edits), api.tokenCalls)
	}
}

func TestClient_WriteSource_BaseRevision(t *testing.T) {
	c, api := newTestClient(t, Config{})
	ctx := context.Background()

	rev, err := c.WriteSource(ctx, session.WriteRequest{Title: "Springfield", Text: "a", BaseRevision: "42"})
	if err != nil {
		t.Fatal(err)
	}
	if api.edits[0]["baserevid"] != "42" {
		t.Errorf("edit params %v", api.edits[0])
	}

	// Another save landed since revision 42.
	_, err = c.WriteSource(ctx, session.WriteRequest{Title: "Springfield", Text: "b", BaseRevision: "42"})
	if !errors.Is(err, session.ErrEditConflict) {
		t.Fatalf("err = %v, want edit conflict", err)
	}
	if _, err := c.WriteSource(ctx, session.WriteRequest{Title: "Springfield", Text: "b", BaseRevision: rev}); err != nil {
		t.Fatalf("save on the latest revision: %v", err)
	}
}

func TestClient_APIError(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	_, err := c.call(context.Background(), c.read, map[string][]string{"action": {"bogus"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "badvalue" {
		t.Fatalf("err = %v", err)
	}
}

func TestClient_Login(t *testing.T) {
	c, api := newTestClient(t, Config{BotUser: "Bot@wikiedit", BotPassword: "secret"})
	if err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.WriteSource(context.Background(), session.WriteRequest{Title: "Springfield", Text: "z"}); err != nil {
		t.Fatal(err)
	}
	if got := api.edits[0]["token"]; got != "bottoken+\\" {
		t.Errorf("edit not attributed to the bot session, token %q", got)
	}
}

func TestClient_LoginRejected(t *testing.T) {
	c, _ := newTestClient(t, Config{BotUser: "Bot@wikiedit", BotPassword: "wrong"})
	err := c.Login(context.Background())
	var le *LoginError
	if !errors.As(err, &le) || le.Result != "Failed" {
		t.Fatalf("err = %v", err)
	}
}

func TestClient_LoginWithoutCredentials(t *testing.T) {
	c, _ := newTestClient(t, Config{})
	if err := c.Login(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestClient_EditURL(t *testing.T) {
	c, err := New(Config{APIURL: "https://wiki.example.org/w/api.php"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := c.EditURL("Main Page", 3)
	want := "https://wiki.example.org/w/index.php?title=Main+Page&action=edit&section=3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNew_RejectsPrivateWithoutOptIn(t *testing.T) {
	if _, err := New(Config{APIURL: "http://127.0.0.1/w/api.php"}, nil); err == nil {
		t.Fatal("expected SSRF rejection")
	}
}
