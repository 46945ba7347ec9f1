package fusionsolar

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

const (
	testSessionCookie = "bspsession"
	testTicketPath    = "/rest/dp/uidm/auth/v1/on-sso-credential-ready"
)

// TestPortal is an in-process fake of the FusionSolar web portal, serving the
// login flow and the data endpoints used by Session.
type TestPortal struct {
	Username string
	Password string

	Stations []map[string]any
	Kpi      map[string]any
	Balance  map[string]any

	server *httptest.Server

	mu            sync.Mutex
	sessions      map[string]string
	nextSession   int
	logins        int
	logouts       int
	failNext      int
	lastStationDn string
	stationPages  int
}

func NewTestPortal() *TestPortal {
	p := &TestPortal{
		Username: "test",
		Password: "test",
		Stations: []map[string]any{
			{"dn": "NE=1001", "name": "El Sebadal", "currentPower": "3,25"},
			{"dn": "NE=1002", "name": "Nave 2", "currentPower": 1.5},
		},
		Kpi: map[string]any{
			"currentPower":     4.75,
			"dailyEnergy":      "21.4",
			"cumulativeEnergy": 10234.5,
		},
		Balance: map[string]any{
			"xAxis":             []any{"2024-06-21 13:30", "2024-06-21 13:35", "2024-06-21 13:40"},
			"productPower":      []any{"0.8", "1.2", MISSING_VALUE},
			"usePower":          []any{MISSING_VALUE, MISSING_VALUE, MISSING_VALUE},
			"totalUsePower":     2.6,
			"totalSelfUsePower": "1,9",
			"buyPowerRatio":     0.25,
		},
		sessions: map[string]string{},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

func (p *TestPortal) URL() string {
	return p.server.URL
}

func (p *TestPortal) Close() {
	p.server.Close()
}

// ExpireSessions drops every active session, the way the portal does after
// its idle timeout.
func (p *TestPortal) ExpireSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = map[string]string{}
}

// FailNext makes the next n requests answer 503.
func (p *TestPortal) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
}

func (p *TestPortal) Logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

func (p *TestPortal) Logouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logouts
}

func (p *TestPortal) LastStationDn() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStationDn
}

func (p *TestPortal) StationPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stationPages
}

func (p *TestPortal) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext > 0 {
		p.failNext--
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Path {
	case "/" + loginPath:
		var lr loginRequest
		if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if lr.Username != p.Username || lr.Password != p.Password {
			writeJSON(w, map[string]any{"errorCode": "470", "errorMsg": "incorrect user name or password"})
			return
		}
		writeJSON(w, map[string]any{"errorMsg": nil, "redirectURL": testTicketPath + "?ticket=ST-1"})
	case testTicketPath:
		p.nextSession++
		id := fmt.Sprintf("session-%d", p.nextSession)
		p.sessions[id] = fmt.Sprintf("csrf-%d", p.nextSession)
		p.logins++
		http.SetCookie(w, &http.Cookie{Name: testSessionCookie, Value: id, Path: "/"})
		w.WriteHeader(http.StatusOK)
	case "/" + authSessionPath:
		csrf, ok := p.session(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"csrfToken": csrf})
	case "/" + logoutPath:
		if c, err := r.Cookie(testSessionCookie); err == nil {
			delete(p.sessions, c.Value)
		}
		p.logouts++
		w.WriteHeader(http.StatusOK)
	case "/" + stationListPath:
		if p.authorized(w, r) {
			var req stationListRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CurPage < 1 || req.PageSize < 1 {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			p.stationPages++
			from := min((req.CurPage-1)*req.PageSize, len(p.Stations))
			to := min(from+req.PageSize, len(p.Stations))
			writeJSON(w, map[string]any{"success": true, "data": map[string]any{"list": p.Stations[from:to], "total": len(p.Stations)}})
		}
	case "/" + fleetKpiPath:
		if p.authorized(w, r) {
			writeJSON(w, map[string]any{"success": true, "data": p.Kpi})
		}
	case "/" + energyFlowPath:
		if p.authorized(w, r) {
			p.lastStationDn = r.URL.Query().Get("stationDn")
			writeJSON(w, map[string]any{"success": true, "data": p.Balance})
		}
	default:
		http.NotFound(w, r)
	}
}

func (p *TestPortal) session(r *http.Request) (string, bool) {
	c, err := r.Cookie(testSessionCookie)
	if err != nil {
		return "", false
	}
	csrf, ok := p.sessions[c.Value]
	return csrf, ok
}

// authorized serves the login page, as the portal does, when the session is
// unknown or the csrf header does not match.
func (p *TestPortal) authorized(w http.ResponseWriter, r *http.Request) bool {
	csrf, ok := p.session(r)
	if !ok || r.Header.Get(csrfHeader) != csrf {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "<html><body>login</body></html>")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
