package spider

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the typed realization of the enumerated Settings keys (§6),
// translated from the source's settings.py defaults module. Unchanged key
// set; env-var loading idiom grounded in the teacher's envMap/
// parseSettingsFromEnv pattern (colly.go), generalized from Collector
// fields to Settings fields.
type Settings struct {
	Bot                 string
	UserAgent           string
	DefaultHeaders      map[string]string
	RobotsTxtObey       bool
	CookiesDebug        bool
	CookiesStoreEnabled bool
	CookiesStoreDB      string
	CookiesClear        bool
	DownloadTimeout     time.Duration
	DownloadDelay       time.Duration
	DownloadDelayDomain map[string]time.Duration
	ConcurrentRequests  int
	DepthPriority       int
	RedirectEnabled     bool
	RetryTimes          int
	RetryHTTPCodes      []int
	DownloaderMiddlewares []string
	ItemPipelines       []string
	LogEnabled          bool
	LogEncoding         string
	LogFile             string
	LogFormat           string
}

// DefaultSettings mirrors settings.py's module-level defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Bot:                 "pycurl-session",
		UserAgent:           "pycurl-session/1.0",
		DefaultHeaders:      map[string]string{},
		RobotsTxtObey:       true,
		CookiesDebug:        false,
		CookiesStoreEnabled: true,
		CookiesStoreDB:      "cookies.db",
		CookiesClear:        false,
		DownloadTimeout:     30 * time.Second,
		DownloadDelay:       0,
		DownloadDelayDomain: map[string]time.Duration{},
		ConcurrentRequests:  16,
		DepthPriority:       0,
		RedirectEnabled:     true,
		RetryTimes:          3,
		RetryHTTPCodes:      []int{408, 429, 500, 502, 503, 504, 522, 524},
		LogEnabled:          true,
		LogEncoding:         "utf-8",
		LogFormat:           "%(asctime)s [%(name)s] %(levelname)s: %(message)s",
	}
}

// envMap mirrors colly.go's envMap: each entry names a Settings field and
// the setter to apply when the corresponding environment variable is set.
var envMap = map[string]func(*Settings, string){
	"BOT":                  func(s *Settings, v string) { s.Bot = v },
	"USER_AGENT":           func(s *Settings, v string) { s.UserAgent = v },
	"ROBOTSTXT_OBEY":       func(s *Settings, v string) { s.RobotsTxtObey = isYesString(v) },
	"COOKIES_DEBUG":        func(s *Settings, v string) { s.CookiesDebug = isYesString(v) },
	"COOKIES_STORE_ENABLED": func(s *Settings, v string) { s.CookiesStoreEnabled = isYesString(v) },
	"COOKIES_STORE_DB":     func(s *Settings, v string) { s.CookiesStoreDB = v },
	"COOKIES_CLEAR":        func(s *Settings, v string) { s.CookiesClear = isYesString(v) },
	"DOWNLOAD_TIMEOUT": func(s *Settings, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			s.DownloadTimeout = time.Duration(n) * time.Second
		}
	},
	"DOWNLOAD_DELAY": func(s *Settings, v string) {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.DownloadDelay = time.Duration(f * float64(time.Second))
		}
	},
	"CONCURRENT_REQUESTS": func(s *Settings, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			s.ConcurrentRequests = n
		}
	},
	"DEPTH_PRIORITY": func(s *Settings, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			s.DepthPriority = n
		}
	},
	"REDIRECT_ENABLED": func(s *Settings, v string) { s.RedirectEnabled = isYesString(v) },
	"RETRY_TIMES": func(s *Settings, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			s.RetryTimes = n
		}
	},
	"LOG_ENABLED":  func(s *Settings, v string) { s.LogEnabled = isYesString(v) },
	"LOG_ENCODING": func(s *Settings, v string) { s.LogEncoding = v },
	"LOG_FILE":     func(s *Settings, v string) { s.LogFile = v },
	"LOG_FORMAT":   func(s *Settings, v string) { s.LogFormat = v },
}

// LoadSettingsFromEnv applies environment variables named in envMap,
// prefixed with prefix (e.g. "PYCURL_SESSION_"), onto DefaultSettings().
func LoadSettingsFromEnv(prefix string) *Settings {
	s := DefaultSettings()
	for key, setter := range envMap {
		if v, ok := os.LookupEnv(prefix + key); ok {
			setter(s, v)
		}
	}
	return s
}

func isYesString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
