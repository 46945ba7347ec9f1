package fusionsolar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const (
	loginPath       = "unisso/v2/validateUser.action"
	authPath        = "unisess/v1/auth"
	authSessionPath = "unisess/v1/auth/session"
	logoutPath      = "unisess/v1/logout"
	stationListPath = "rest/pvms/web/station/v1/station/station-list"
	fleetKpiPath    = "rest/pvms/web/station/v1/station/total-real-kpi"
	energyFlowPath  = "rest/pvms/web/station/v1/overview/energy-balance"

	homePath = "/netecowebext/home/index.html"

	// csrf token header expected by the web api
	csrfHeader = "roarand"

	DEFAULT_REQUEST_TIMEOUT = 20 * time.Second

	STATION_PAGE_SIZE = 10
	MAX_STATION_PAGES = 20
)

var (
	// ErrBadCredentials is returned by Login when the portal rejects the
	// username or password. Retrying will not help.
	ErrBadCredentials = errors.New("fusionsolar: bad credentials")
	// ErrSessionExpired is returned when the portal no longer accepts the
	// session cookies. A new Login is required.
	ErrSessionExpired = errors.New("fusionsolar: session expired")
	// ErrRequestFailed is returned when the portal answers with success=false.
	ErrRequestFailed = errors.New("fusionsolar: request failed")
)

type Config struct {
	Username  string
	Password  string
	Subdomain string
	// BaseURL overrides the portal derived from Subdomain.
	BaseURL        string
	RequestTimeout time.Duration
	// MaxRetries bounds the retries of transient failures (network errors
	// and 5xx responses) of a single request.
	MaxRetries uint64
}

// Client logs into the FusionSolar web portal. It holds no session state:
// every Login returns an independent Session.
type Client struct {
	cfg       Config
	baseURL   *url.URL
	userAgent string
	logger    *zap.Logger

	retryInitialInterval time.Duration
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		if cfg.Subdomain == "" {
			return nil, errors.New("fusionsolar: subdomain or base url required")
		}
		base = fmt.Sprintf("https://%s.fusionsolar.huawei.com", cfg.Subdomain)
	}
	baseURL, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("fusionsolar: invalid base url: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DEFAULT_REQUEST_TIMEOUT
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:                  cfg,
		baseURL:              baseURL,
		userAgent:            fmt.Sprintf("fusionsolar2json/%s", versioninfo.Short()),
		logger:               logger.With(zap.String("component", "fusionsolar")),
		retryInitialInterval: 500 * time.Millisecond,
	}, nil
}

// Session is one authenticated portal session. It is not safe for
// concurrent use by multiple goroutines issuing Login and Logout, but data
// requests may run concurrently.
type Session struct {
	client *Client
	http   *http.Client
	csrf   string
}

type loginRequest struct {
	OrganizationName string `json:"organizationName"`
	Username         string `json:"username"`
	Password         string `json:"password"`
}

type loginResponse struct {
	ErrorCode   any    `json:"errorCode"`
	ErrorMsg    string `json:"errorMsg"`
	RedirectURL string `json:"redirectURL"`
}

type authSessionResponse struct {
	CsrfToken string `json:"csrfToken"`
}

// Login authenticates against the portal and returns a fresh session with
// its own cookie jar.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	s := &Session{
		client: c,
		http: &http.Client{
			Jar:     jar,
			Timeout: c.cfg.RequestTimeout,
		},
	}

	service := c.resolve(authPath, url.Values{"service": {homePath}})
	loginURL := c.resolve(loginPath, url.Values{
		"decision": {"1"},
		"service":  {service},
	})

	body, err := json.Marshal(loginRequest{
		Username: c.cfg.Username,
		Password: c.cfg.Password,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fusionsolar: login", zap.String("user", c.cfg.Username))

	var lr loginResponse
	err = s.doRaw(ctx, http.MethodPost, loginURL, body, &lr)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if lr.ErrorMsg != "" || lr.RedirectURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrBadCredentials, lr.ErrorMsg)
	}

	// the redirect sets the session cookies
	redirect, err := c.baseURL.Parse(lr.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("login failed: invalid redirect: %w", err)
	}
	if err := s.follow(ctx, redirect.String()); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	var as authSessionResponse
	err = s.doRaw(ctx, http.MethodGet, c.resolve(authSessionPath, nil), nil, &as)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if as.CsrfToken == "" {
		return nil, fmt.Errorf("%w: no csrf token after login", ErrSessionExpired)
	}
	s.csrf = as.CsrfToken

	c.logger.Debug("fusionsolar: logged in")
	return s, nil
}

// Logout ends the session. It is best effort: the portal expires abandoned
// sessions on its own.
func (s *Session) Logout(ctx context.Context) error {
	s.client.logger.Debug("fusionsolar: logout")
	logoutURL := s.client.resolve(logoutPath, url.Values{
		"service": {s.client.baseURL.String()},
	})
	err := s.follow(ctx, logoutURL)
	s.csrf = ""
	s.http.CloseIdleConnections()
	return err
}

// StationList returns the stations of the account, in portal order. Pages of
// STATION_PAGE_SIZE are requested until the reported total is reached, up to
// MAX_STATION_PAGES.
func (s *Session) StationList(ctx context.Context) ([]Station, error) {
	var stations []Station
	for page := 1; page <= MAX_STATION_PAGES; page++ {
		data, err := s.stationPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("station list: %w", err)
		}
		stations = append(stations, data.List...)
		if len(data.List) < STATION_PAGE_SIZE || len(stations) >= cast.ToInt(data.Total) {
			return stations, nil
		}
	}
	s.client.logger.Warn("station list truncated", zap.Int("stations", len(stations)))
	return stations, nil
}

func (s *Session) stationPage(ctx context.Context, page int) (*stationListData, error) {
	now := time.Now()
	body, err := json.Marshal(stationListRequest{
		CurPage:   page,
		PageSize:  STATION_PAGE_SIZE,
		QueryTime: midnightMillis(now),
		TimeZone:  timeZoneHours(now),
		SortId:    "createTime",
		SortDir:   "DESC",
		Locale:    "en_US",
	})
	if err != nil {
		return nil, err
	}
	var data stationListData
	if err := s.do(ctx, http.MethodPost, s.client.resolve(stationListPath, nil), body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// PowerStatus returns the fleet wide real time kpi.
func (s *Session) PowerStatus(ctx context.Context) (*PowerStatus, error) {
	now := time.Now()
	q := url.Values{
		"queryTime": {fmt.Sprint(midnightMillis(now))},
		"timeZone":  {fmt.Sprint(timeZoneHours(now))},
		"_":         {fmt.Sprint(now.UnixMilli())},
	}
	var data PowerStatus
	if err := s.do(ctx, http.MethodGet, s.client.resolve(fleetKpiPath, q), nil, &data); err != nil {
		return nil, fmt.Errorf("power status: %w", err)
	}
	return &data, nil
}

// EnergyBalance returns today's energy balance of a station. Series are
// aligned with the "xAxis" key.
func (s *Session) EnergyBalance(ctx context.Context, stationDn string) (EnergyBalance, error) {
	now := time.Now()
	q := url.Values{
		"stationDn":   {stationDn},
		"timeDim":     {"2"},
		"queryTime":   {fmt.Sprint(midnightMillis(now))},
		"timeZone":    {fmt.Sprint(timeZoneHours(now))},
		"timeZoneStr": {now.Location().String()},
		"_":           {fmt.Sprint(now.UnixMilli())},
	}
	var data EnergyBalance
	if err := s.do(ctx, http.MethodGet, s.client.resolve(energyFlowPath, q), nil, &data); err != nil {
		return nil, fmt.Errorf("energy balance: %w", err)
	}
	return data, nil
}

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	FailCode any             `json:"failCode"`
	Message  string          `json:"message"`
}

// do runs an authenticated data request and decodes the data field of the
// response envelope into out.
func (s *Session) do(ctx context.Context, method, target string, body []byte, out any) error {
	if s.csrf == "" {
		return ErrSessionExpired
	}
	var env envelope
	if err := s.doRaw(ctx, method, target, body, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("%w: failCode=%v %s", ErrRequestFailed, env.FailCode, env.Message)
	}
	if len(env.Data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.UseNumber()
	return dec.Decode(out)
}

// doRaw sends the request, retrying transient failures, and decodes the
// JSON body into out. A non JSON body means the portal served its login page.
func (s *Session) doRaw(ctx context.Context, method, target string, body []byte, out any) error {
	payload, err := backoff.RetryWithData(func() ([]byte, error) {
		return s.send(ctx, method, target, body)
	}, s.client.backOff(ctx))
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: unexpected response body", ErrSessionExpired)
	}
	return nil
}

// follow issues a GET and discards the body, only checking the status.
func (s *Session) follow(ctx context.Context, target string) error {
	_, err := backoff.RetryWithData(func() ([]byte, error) {
		return s.send(ctx, http.MethodGet, target, nil)
	}, s.client.backOff(ctx))
	return err
}

func (s *Session) send(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", s.client.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.csrf != "" {
		req.Header.Set(csrfHeader, s.csrf)
	}

	s.client.logger.Debug("fusionsolar: request", zap.String("method", method), zap.String("path", req.URL.Path))

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		s.client.logger.Warn("fusionsolar: request error", zap.String("path", req.URL.Path), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrSessionExpired, resp.StatusCode))
	case resp.StatusCode >= 500:
		s.client.logger.Warn("fusionsolar: server error", zap.String("path", req.URL.Path), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("fusionsolar: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode))
	}
	return payload, nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitialInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx)
}

func (c *Client) resolve(path string, query url.Values) string {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func midnightMillis(now time.Time) int64 {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).UnixMilli()
}

func timeZoneHours(now time.Time) float64 {
	_, offset := now.Zone()
	return float64(offset) / 3600
}
