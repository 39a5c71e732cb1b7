package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ErrConfigInvalid marks a fatal configuration problem detected at startup.
// Rounds never run against an invalid configuration.
var ErrConfigInvalid = errors.New("invalid configuration")

type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

type WebConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

type DBConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// IPRange describes one candidate address range, e.g. prefix "104.27" or a
// full CIDR such as "172.64.32.0/24".
type IPRange struct {
	Cidr  string `yaml:"cidr"`
	Start int    `yaml:"start"`
	End   int    `yaml:"end"`
}

type ProbeConfig struct {
	Ranges        []IPRange `yaml:"ranges"`
	SkipIps       []string  `yaml:"skip_ips"`
	SampleSize    int       `yaml:"sample_size"`
	SampleRate    float64   `yaml:"sample_rate"`
	PingCount     int       `yaml:"ping_count"`
	PingTimeoutMs int       `yaml:"ping_timeout_ms"`
	HTTPTimeoutMs int       `yaml:"http_timeout_ms"`
	HTTPTestURL   string    `yaml:"http_test_url"`
	MaxWorkers    int       `yaml:"max_workers"`
}

// LineValues is a per-carrier-line lookup table of one numeric knob.
type LineValues struct {
	Telecom  float64 `yaml:"telecom"`
	Unicom   float64 `yaml:"unicom"`
	Mobile   float64 `yaml:"mobile"`
	Overseas float64 `yaml:"overseas"`
	Default  float64 `yaml:"default"`
}

// For returns the value for the given canonical line name, falling back to
// the default line for unknown names.
func (v LineValues) For(line string) float64 {
	switch strings.ToUpper(line) {
	case "TELECOM":
		return v.Telecom
	case "UNICOM":
		return v.Unicom
	case "MOBILE":
		return v.Mobile
	case "OVERSEAS":
		return v.Overseas
	default:
		return v.Default
	}
}

type HTTPThresholds struct {
	TTFBMs      float64 `yaml:"ttfb_ms"`
	TotalTimeMs float64 `yaml:"total_time_ms"`
	SuccessRate float64 `yaml:"success_rate"`
}

type PingWeights struct {
	Latency   float64 `yaml:"latency"`
	Loss      float64 `yaml:"loss"`
	Stability float64 `yaml:"stability"`
}

type HTTPWeights struct {
	TTFB      float64 `yaml:"ttfb"`
	TotalTime float64 `yaml:"total_time"`
}

type Weights struct {
	Ping PingWeights `yaml:"ping"`
	HTTP HTTPWeights `yaml:"http"`
}

// Sum returns the total of all weight coefficients. Weights are not required
// to total 1.0; composite scores are normalized by this sum.
func (w Weights) Sum() float64 {
	return w.Ping.Latency + w.Ping.Loss + w.Ping.Stability + w.HTTP.TTFB + w.HTTP.TotalTime
}

type EvalConfig struct {
	LatencyThresholdMs   LineValues     `yaml:"latency_threshold_ms"`
	MaxLossRate          float64        `yaml:"max_loss_rate"`
	MinSuccessRate       float64        `yaml:"min_success_rate"`
	StabilityThresholdMs float64        `yaml:"stability_threshold_ms"`
	HTTP                 HTTPThresholds `yaml:"http"`
	Weights              Weights        `yaml:"weights"`
}

type HistoryConfig struct {
	MaxHistoryDays   int     `yaml:"max_history_days"`
	HistoryWeight    float64 `yaml:"history_weight"`
	MinTestsForBadIP int     `yaml:"min_tests_for_bad_ip"`
	BadIPThreshold   float64 `yaml:"bad_ip_threshold"`
}

// LineCaps is the per-line record-count ceiling published to DNS.
type LineCaps struct {
	Telecom  int `yaml:"telecom"`
	Unicom   int `yaml:"unicom"`
	Mobile   int `yaml:"mobile"`
	Overseas int `yaml:"overseas"`
	Default  int `yaml:"default"`
}

func (c LineCaps) For(line string) int {
	switch strings.ToUpper(line) {
	case "TELECOM":
		return c.Telecom
	case "UNICOM":
		return c.Unicom
	case "MOBILE":
		return c.Mobile
	case "OVERSEAS":
		return c.Overseas
	default:
		return c.Default
	}
}

type SelectionConfig struct {
	StabilityMargin   float64  `yaml:"stability_margin"`
	MaxRecordsPerLine LineCaps `yaml:"max_records_per_line"`
}

type DNSPodConfig struct {
	SecretId  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
}

type DNSConfig struct {
	Provider  string       `yaml:"provider"`
	Domain    string       `yaml:"domain"`
	SubDomain string       `yaml:"sub_domain"`
	TTL       int          `yaml:"ttl"`
	DNSPod    DNSPodConfig `yaml:"dnspod"`
}

type AppConfig struct {
	System     SysConfig       `yaml:"system"`
	Web        WebConfig       `yaml:"web"`
	Database   DBConfig        `yaml:"database"`
	Logger     LogConfig       `yaml:"logger"`
	Probe      ProbeConfig     `yaml:"probe"`
	Evaluation EvalConfig      `yaml:"evaluation"`
	History    HistoryConfig   `yaml:"history"`
	Selection  SelectionConfig `yaml:"selection"`
	DNS        DNSConfig       `yaml:"dns"`
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "toughdns",
			Location: "Asia/Shanghai",
			Workdir:  "/var/toughdns",
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 1980,
		},
		Database: DBConfig{
			Type:     "sqlite",
			Name:     "toughdns",
			MaxConn:  50,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: false,
			Filename:   "/var/toughdns/toughdns.log",
		},
		Probe: ProbeConfig{
			PingCount:     4,
			PingTimeoutMs: 3000,
			HTTPTimeoutMs: 5000,
			HTTPTestURL:   "https://www.cloudflare.com/cdn-cgi/trace",
			MaxWorkers:    50,
		},
		Evaluation: EvalConfig{
			LatencyThresholdMs: LineValues{
				Telecom: 100, Unicom: 100, Mobile: 100, Overseas: 150, Default: 150,
			},
			MaxLossRate:          20,
			MinSuccessRate:       0.8,
			StabilityThresholdMs: 50,
			HTTP: HTTPThresholds{
				TTFBMs:      200,
				TotalTimeMs: 1000,
				SuccessRate: 0.8,
			},
			Weights: Weights{
				Ping: PingWeights{Latency: 0.4, Loss: 0.2, Stability: 0.2},
				HTTP: HTTPWeights{TTFB: 0.1, TotalTime: 0.1},
			},
		},
		History: HistoryConfig{
			MaxHistoryDays:   30,
			HistoryWeight:    0.3,
			MinTestsForBadIP: 5,
			BadIPThreshold:   0.8,
		},
		Selection: SelectionConfig{
			StabilityMargin: 0.05,
			MaxRecordsPerLine: LineCaps{
				Telecom: 2, Unicom: 2, Mobile: 2, Overseas: 2, Default: 1,
			},
		},
		DNS: DNSConfig{
			Provider: "dnspod",
			TTL:      600,
		},
	}
}

// LoadConfig reads the YAML configuration file, applies environment overrides
// and validates the result. Any validation failure is fatal for the process.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}
	setEnvValue("TOUGHDNS_DB_HOST", &cfg.Database.Host)
	setEnvValue("TOUGHDNS_DB_USER", &cfg.Database.User)
	setEnvValue("TOUGHDNS_DB_PASSWD", &cfg.Database.Passwd)
	setEnvValue("TOUGHDNS_DNSPOD_SECRET_ID", &cfg.DNS.DNSPod.SecretId)
	setEnvValue("TOUGHDNS_DNSPOD_SECRET_KEY", &cfg.DNS.DNSPod.SecretKey)
	setEnvValue("TOUGHDNS_WEB_TOKEN", &cfg.Web.Token)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setEnvValue(name string, val *string) {
	if evalue, ok := os.LookupEnv(name); ok {
		*val = evalue
	}
}

// Validate checks every threshold and weight the evaluation engine trusts to
// be present and in range.
func (c *AppConfig) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	ev := c.Evaluation
	for _, lt := range []struct {
		name  string
		value float64
	}{
		{"telecom", ev.LatencyThresholdMs.Telecom},
		{"unicom", ev.LatencyThresholdMs.Unicom},
		{"mobile", ev.LatencyThresholdMs.Mobile},
		{"overseas", ev.LatencyThresholdMs.Overseas},
		{"default", ev.LatencyThresholdMs.Default},
	} {
		check(lt.value > 0, "evaluation.latency_threshold_ms.%s must be > 0", lt.name)
	}
	check(ev.MaxLossRate > 0 && ev.MaxLossRate <= 100, "evaluation.max_loss_rate must be in (0,100]")
	check(ev.MinSuccessRate >= 0 && ev.MinSuccessRate <= 1, "evaluation.min_success_rate must be in [0,1]")
	check(ev.StabilityThresholdMs > 0, "evaluation.stability_threshold_ms must be > 0")
	check(ev.HTTP.TTFBMs > 0, "evaluation.http.ttfb_ms must be > 0")
	check(ev.HTTP.TotalTimeMs > 0, "evaluation.http.total_time_ms must be > 0")
	check(ev.HTTP.SuccessRate >= 0 && ev.HTTP.SuccessRate <= 1, "evaluation.http.success_rate must be in [0,1]")

	for _, w := range []struct {
		name  string
		value float64
	}{
		{"ping.latency", ev.Weights.Ping.Latency},
		{"ping.loss", ev.Weights.Ping.Loss},
		{"ping.stability", ev.Weights.Ping.Stability},
		{"http.ttfb", ev.Weights.HTTP.TTFB},
		{"http.total_time", ev.Weights.HTTP.TotalTime},
	} {
		check(w.value >= 0, "evaluation.weights.%s must be >= 0", w.name)
	}
	check(ev.Weights.Sum() > 0, "evaluation.weights must not all be zero")

	h := c.History
	check(h.MaxHistoryDays > 0, "history.max_history_days must be > 0")
	check(h.HistoryWeight >= 0 && h.HistoryWeight <= 1, "history.history_weight must be in [0,1]")
	check(h.MinTestsForBadIP > 0, "history.min_tests_for_bad_ip must be > 0")
	check(h.BadIPThreshold > 0 && h.BadIPThreshold <= 1, "history.bad_ip_threshold must be in (0,1]")

	s := c.Selection
	check(s.StabilityMargin >= 0, "selection.stability_margin must be >= 0")
	for _, lc := range []struct {
		name  string
		value int
	}{
		{"telecom", s.MaxRecordsPerLine.Telecom},
		{"unicom", s.MaxRecordsPerLine.Unicom},
		{"mobile", s.MaxRecordsPerLine.Mobile},
		{"overseas", s.MaxRecordsPerLine.Overseas},
		{"default", s.MaxRecordsPerLine.Default},
	} {
		check(lc.value > 0, "selection.max_records_per_line.%s must be > 0", lc.name)
	}

	check(c.DNS.TTL > 0, "dns.ttl must be > 0")

	if len(problems) > 0 {
		return errors.Wrap(ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}
