package flux

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCapabilities(t *testing.T) {
	e := newTestEngine(t, Config{})
	cases := []struct {
		expr string
		want string
	}{
		{`json_dumps({"b": 1, "a": [1, "x,y"]})`, `"{\"a\": [1, \"x,y\"], \"b\": 1}"`},
		{`json_dumps({"k": "a:b"}, sort_keys=True)`, `"{\"k\": \"a:b\"}"`},
		{`json_dumps([])`, `"[]"`},
		{`json_dumps(None)`, `"null"`},
		{`json_dumps({"a": 1}, indent=2)`, `"{\n  \"a\": 1\n}"`},
		{`json_dumps([1], indent="\t")`, `"[\n\t1\n]"`},
		{`json_loads("{\"a\": [1, 2.5, null, true]}")`, `{"a": [1, 2.5, None, True]}`},
		{`json_loads("\"hi\"")`, `"hi"`},
		{`url_encode({"q": "a b", "n": 1})`, `"q=a+b&n=1"`},
		{`url_encode([("x", "1"), ("y", "&")])`, `"x=1&y=%26"`},
		{`url_decode("a=1&b=&a=2&c=x+y&flag")`, `{"a": "2", "c": "x y"}`},
		{`url_decode("")`, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			if got := evalExpr(t, e, tc.expr).String(); got != tc.want {
				t.Fatalf("%s = %s, want %s", tc.expr, got, tc.want)
			}
		})
	}
}

func TestJSONCapabilityErrors(t *testing.T) {
	e := newTestEngine(t, Config{})
	requireKind(t, evalError(t, e, `json_loads("{bad")`), KindJSONDecode)
	requireKind(t, evalError(t, e, `json_loads(1)`), KindType)
	requireKind(t, evalError(t, e, `json_dumps(len)`), KindType)
	requireKind(t, evalError(t, e, `json_dumps([], indent=[])`), KindType)
	requireKind(t, evalError(t, e, `url_encode([1])`), KindType)
	assert.True(t, KindJSONDecode.Matches(KindValue))
}

func TestHTTPGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "flux-test", r.Header.Get("X-Client"))
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		_, _ = w.Write([]byte("caf\xe9"))
	}))
	defer srv.Close()

	e := newTestEngine(t, Config{})
	got := evalExpr(t, e, fmt.Sprintf(`http_get(%q, headers={"X-Client": "flux-test"})`, srv.URL))
	assert.Equal(t, `"café"`, got.String())
}

func TestHTTPPostSendsJSON(t *testing.T) {
	type request struct{ body, contentType string }
	requests := make(chan request, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		requests <- request{string(data), r.Header.Get("Content-Type")}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	e := newTestEngine(t, Config{})
	got := evalExpr(t, e, fmt.Sprintf(`json_loads(http_post(%q, {"n": 1}))["ok"]`, srv.URL))
	assert.Equal(t, "True", got.String())
	req := <-requests
	assert.Equal(t, `{"n": 1}`, req.body)
	assert.Equal(t, "application/json", req.contentType)

	evalExpr(t, e, fmt.Sprintf(`http_post(%q, "raw text")`, srv.URL))
	req = <-requests
	assert.Equal(t, "raw text", req.body)
	assert.NotEqual(t, "application/json", req.contentType)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	e := newTestEngine(t, Config{})
	err := evalError(t, e, fmt.Sprintf(`http_get(%q)`, srv.URL))
	requireKind(t, err, KindHTTP)
	assert.Contains(t, err.Error(), "HTTP Error 404: Not Found")
}

func TestHTTPTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := newTestEngine(t, Config{})
	start := time.Now()
	err := evalError(t, e, fmt.Sprintf(`http_get(%q, timeout=0.05)`, srv.URL))
	requireKind(t, err, KindTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := newTestEngine(t, Config{})
	err := evalError(t, e, fmt.Sprintf(`http_get(%q)`, url))
	require.Error(t, err)
	assert.True(t, KindOf(err).Matches(KindOS), "got %s", KindOf(err))
}

func TestHTTPArgumentErrors(t *testing.T) {
	e := newTestEngine(t, Config{})
	requireKind(t, evalError(t, e, `http_get("http://127.0.0.1:1", timeout=0)`), KindValue)
	requireKind(t, evalError(t, e, `http_get("http://127.0.0.1:1", headers=[1])`), KindType)
	requireKind(t, evalError(t, e, `http_get("::not a url")`), KindValue)
}
