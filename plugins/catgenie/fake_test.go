package catgenie

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeVendor is an in-memory stand-in for the PetNovations cloud.
type fakeVendor struct {
	t *testing.T

	mu            sync.Mutex
	tokens        []string
	tokenStatus   int
	exchanges     int
	devicesBody   string
	devicesCode   int
	status        map[string]string
	statusCode    int
	statusDelay   time.Duration
	rejectTokens  map[string]bool
	operations    []string
	authHeaders   []string
	requestHeader http.Header
}

func newFakeVendor(t *testing.T) (*fakeVendor, *httptest.Server) {
	t.Helper()
	f := &fakeVendor{
		t:            t,
		tokens:       []string{"xyz"},
		devicesBody:  `{"thingList":[{"manufacturerId":"dev-1","name":"Upstairs","macAddress":"aa:bb","fwVersion":"1.2.3","reportedStatus":"connected","remainingSaniSolution":42}]}`,
		status:       map[string]string{"dev-1": `{"state":1,"progress":50,"error":"","sens":"1","mode":2,"stepNum":3}`},
		rejectTokens: map[string]bool{},
	}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeVendor) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requestHeader = r.Header.Clone()
	f.mu.Unlock()

	if r.URL.Path == refreshTokenPath {
		f.serveToken(w, r)
		return
	}

	auth := r.Header.Get("Authorization")
	f.mu.Lock()
	f.authHeaders = append(f.authHeaders, auth)
	rejected := f.rejectTokens[strings.TrimPrefix(auth, "Bearer ")]
	f.mu.Unlock()
	if rejected {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"token expired"}`)
		return
	}

	switch {
	case r.URL.Path == devicesPath:
		f.mu.Lock()
		body := f.devicesBody
		code := f.devicesCode
		f.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	case strings.HasSuffix(r.URL.Path, "/operation/status"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/device/management/"), "/operation/status")
		f.mu.Lock()
		body, ok := f.status[id]
		code := f.statusCode
		delay := f.statusDelay
		f.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	case strings.HasSuffix(r.URL.Path, "/operation") && r.Method == http.MethodPost:
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.operations = append(f.operations, r.URL.Path+" "+string(data))
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func (f *fakeVendor) serveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		f.t.Errorf("expected POST to %s, got %s", refreshTokenPath, r.Method)
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		f.t.Errorf("decode refresh body: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenStatus != 0 {
		w.WriteHeader(f.tokenStatus)
		return
	}
	if body.RefreshToken != "abc" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	token := f.tokens[len(f.tokens)-1]
	if f.exchanges < len(f.tokens) {
		token = f.tokens[f.exchanges]
	}
	f.exchanges++
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (f *fakeVendor) set(fn func(f *fakeVendor)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeVendor) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

func (f *fakeVendor) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.authHeaders) == 0 {
		return ""
	}
	return f.authHeaders[len(f.authHeaders)-1]
}

func (f *fakeVendor) authCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.authHeaders)
}

func (f *fakeVendor) lastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestHeader.Clone()
}

func (f *fakeVendor) sentOperations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.operations...)
}

func testConfig(baseURL string) Config {
	return Config{
		Name:           "Litter Box",
		RefreshToken:   "abc",
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(testConfig(baseURL), zerolog.Nop())
	require.NoError(t, err)
	return client
}
