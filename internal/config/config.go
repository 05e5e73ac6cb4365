package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ContentCurator/internal/domain"
)

const (
	configPathEnv       = "CONTENT_CURATOR_CONFIG"
	logLevelEnv         = "LOG_LEVEL"
	cacheDirEnv         = "CACHE_DIR"
	scoringProviderEnv  = "SCORING_PROVIDER"
	chatGPTAPIKeyEnv    = "CHATGPT_API_KEY"
	openAIAPIKeyEnv     = "OPENAI_API_KEY"
	chatGPTModelEnv     = "CHATGPT_MODEL"
	cohereAPIKeyEnv     = "COHERE_API_KEY"
	scoringServiceEnv   = "SCORING_SERVICE_URL"
	tavilyAPIKeyEnv     = "TAVILY_API_KEY"
	redditClientIDEnv   = "REDDIT_CLIENT_ID"
	redditSecretEnv     = "REDDIT_CLIENT_SECRET"
	youtubeAPIKeyEnv    = "YOUTUBE_API_KEY"
	githubTokenEnv      = "GITHUB_TOKEN"
	redisAddrEnv        = "REDIS_ADDR"
	redisPasswordEnv    = "REDIS_PASSWORD"
	archiveDSNEnv       = "DATABASE_DSN"
	exportBucketEnv     = "EXPORT_S3_BUCKET"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	metricsTextfileEnv  = "METRICS_TEXTFILE"
	defaultSourceLimit  = 10
	defaultRatePerSec   = 1.0
	defaultProviderTTL  = 6 * time.Hour
	defaultProviderSize = 512
)

// Source kinds understood by the application wiring.
const (
	KindSearch   = "search"
	KindReddit   = "reddit"
	KindSubstack = "substack"
	KindYouTube  = "youtube"
	KindArxiv    = "arxiv"
	KindGitHub   = "github"
	KindBlogs    = "blogs"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig       `yaml:"logging"`
	Cache         CacheConfig         `yaml:"cache"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Rubric        RubricConfig        `yaml:"rubric"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Sources       []SourceConfig      `yaml:"sources"`
	ProviderCache ProviderCacheConfig `yaml:"providerCache"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Export        ExportConfig        `yaml:"export"`
	Notifications NotificationConfig  `yaml:"notifications"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// LoggingConfig selects verbosity and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig describes the persistent URL and content cache.
type CacheConfig struct {
	Dir           string        `yaml:"dir"`
	URLMaxAge     time.Duration `yaml:"urlMaxAge"`
	ContentMaxAge time.Duration `yaml:"contentMaxAge"`
	PurgeInterval time.Duration `yaml:"purgeInterval"`
}

// PipelineConfig bounds concurrency and per-item work.
type PipelineConfig struct {
	Method           string        `yaml:"method"`
	Workers          int           `yaml:"workers"`
	PerSourceLimit   int           `yaml:"perSourceLimit"`
	DiscoveryTimeout time.Duration `yaml:"discoveryTimeout"`
	ExtractTimeout   time.Duration `yaml:"extractTimeout"`
	EvaluateTimeout  time.Duration `yaml:"evaluateTimeout"`
	QualityFloor     float64       `yaml:"qualityFloor"`
	MinTextLength    int           `yaml:"minTextLength"`
	MaxTextLength    int           `yaml:"maxTextLength"`
	UserAgent        string        `yaml:"userAgent"`
}

// RubricConfig lists weighted criteria and the score range. When
// Perspectives is set each item is scored once per perspective instead.
type RubricConfig struct {
	Criteria          []domain.Criterion  `yaml:"criteria"`
	Min               float64             `yaml:"min"`
	Max               float64             `yaml:"max"`
	StrengthThreshold float64             `yaml:"strengthThreshold"`
	Perspectives      []PerspectiveConfig `yaml:"perspectives"`
}

// PerspectiveConfig names a reviewer role. Role and Criteria may be omitted
// for the built-in engineering_manager and staff_engineer perspectives.
type PerspectiveConfig struct {
	Name     string             `yaml:"name"`
	Role     string             `yaml:"role"`
	Criteria []domain.Criterion `yaml:"criteria"`
}

// Build validates the rubric.
func (r RubricConfig) Build() (domain.Rubric, error) {
	return domain.NewRubric(r.Criteria, r.Min, r.Max, r.StrengthThreshold)
}

// BuildPerspectives validates the configured perspectives against the range
// of base.
func (r RubricConfig) BuildPerspectives(base domain.Rubric) ([]domain.Perspective, error) {
	out := make([]domain.Perspective, 0, len(r.Perspectives))
	seen := map[string]struct{}{}
	for _, pc := range r.Perspectives {
		name := strings.TrimSpace(pc.Name)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("rubric: duplicate perspective %s", name)
		}
		seen[name] = struct{}{}

		role, criteria := pc.Role, pc.Criteria
		if presetRole, presetCriteria, ok := domain.BuiltinPerspective(name); ok {
			if strings.TrimSpace(role) == "" {
				role = presetRole
			}
			if len(criteria) == 0 {
				criteria = presetCriteria
			}
		}
		p, err := domain.NewPerspective(name, role, criteria, base)
		if err != nil {
			return nil, fmt.Errorf("rubric: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ScoringConfig picks and configures the scoring backend.
type ScoringConfig struct {
	Provider string        `yaml:"provider"`
	ChatGPT  ChatGPTConfig `yaml:"chatgpt"`
	Cohere   CohereConfig  `yaml:"cohere"`
	ML       MLConfig      `yaml:"ml"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible API.
type ChatGPTConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"maxAttempts"`
}

// CohereConfig defines how to contact Cohere.
type CohereConfig struct {
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// MLConfig describes a plain HTTP scoring service.
type MLConfig struct {
	InferenceURL string        `yaml:"inferenceUrl"`
	APIKey       string        `yaml:"apiKey"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SourceConfig describes one provider adapter.
type SourceConfig struct {
	Name          string            `yaml:"name"`
	Kind          string            `yaml:"kind"`
	Enabled       *bool             `yaml:"enabled"`
	Limit         int               `yaml:"limit"`
	RatePerSecond float64           `yaml:"ratePerSecond"`
	CacheTTL      time.Duration     `yaml:"cacheTtl"`
	Endpoint      string            `yaml:"endpoint"`
	Credentials   CredentialsConfig `yaml:"credentials"`
	Targets       []TargetConfig    `yaml:"targets"`
	Options       map[string]string `yaml:"options"`
}

// IsEnabled defaults to true when unset.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// CredentialsConfig carries provider secrets.
type CredentialsConfig struct {
	APIKey       string `yaml:"apiKey"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	Token        string `yaml:"token"`
}

// TargetConfig is one concrete endpoint inside a provider: a subreddit, a
// newsletter or a blog listing page.
type TargetConfig struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	ItemSelector  string `yaml:"itemSelector"`
	LinkSelector  string `yaml:"linkSelector"`
	TitleSelector string `yaml:"titleSelector"`
}

// ProviderCacheConfig selects the adapter response cache backend.
type ProviderCacheConfig struct {
	Backend string        `yaml:"backend"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig describes a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ArchiveConfig describes the SQL result archive.
type ArchiveConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ExportConfig describes where run reports are written.
type ExportConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config describes the object storage target.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
	TopN     int    `yaml:"topN"`
}

// MetricsConfig describes where run metrics are written.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Load reads the YAML file named by CONTENT_CURATOR_CONFIG (if set) and
// applies environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile reads path (if non-empty) over the defaults and applies
// environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	rubric, err := cfg.Rubric.Build()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Rubric.BuildPerspectives(rubric); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	setIf(&c.Logging.Level, logLevelEnv)
	setIf(&c.Cache.Dir, cacheDirEnv)
	setIf(&c.Scoring.Provider, scoringProviderEnv)
	setIf(&c.Scoring.ChatGPT.APIKey, openAIAPIKeyEnv)
	setIf(&c.Scoring.ChatGPT.APIKey, chatGPTAPIKeyEnv)
	setIf(&c.Scoring.ChatGPT.Model, chatGPTModelEnv)
	setIf(&c.Scoring.Cohere.APIKey, cohereAPIKeyEnv)
	setIf(&c.Scoring.ML.InferenceURL, scoringServiceEnv)
	setIf(&c.ProviderCache.Redis.Addr, redisAddrEnv)
	setIf(&c.ProviderCache.Redis.Password, redisPasswordEnv)
	setIf(&c.Archive.DSN, archiveDSNEnv)
	setIf(&c.Export.S3.Bucket, exportBucketEnv)
	setIf(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	setIf(&c.Notifications.Telegram.ChatID, telegramChatIDEnv)
	setIf(&c.Metrics.Textfile, metricsTextfileEnv)

	for i := range c.Sources {
		creds := &c.Sources[i].Credentials
		switch c.Sources[i].Kind {
		case KindSearch:
			fillIf(&creds.APIKey, tavilyAPIKeyEnv)
		case KindReddit:
			fillIf(&creds.ClientID, redditClientIDEnv)
			fillIf(&creds.ClientSecret, redditSecretEnv)
		case KindYouTube:
			fillIf(&creds.APIKey, youtubeAPIKeyEnv)
		case KindGitHub:
			fillIf(&creds.Token, githubTokenEnv)
		}
	}
}

func (c *Config) normalize() {
	defaults := defaultConfig()
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaults.Pipeline.Workers
	}
	if c.Pipeline.PerSourceLimit <= 0 {
		c.Pipeline.PerSourceLimit = defaultSourceLimit
	}
	if c.Cache.URLMaxAge <= 0 {
		c.Cache.URLMaxAge = defaults.Cache.URLMaxAge
	}
	if c.Cache.ContentMaxAge <= 0 {
		c.Cache.ContentMaxAge = defaults.Cache.ContentMaxAge
	}
	if c.ProviderCache.TTL <= 0 {
		c.ProviderCache.TTL = defaultProviderTTL
	}
	if c.ProviderCache.Size <= 0 {
		c.ProviderCache.Size = defaultProviderSize
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Name == "" {
			s.Name = s.Kind
		}
		if s.Limit <= 0 {
			s.Limit = c.Pipeline.PerSourceLimit
		}
		if s.RatePerSecond <= 0 {
			s.RatePerSecond = defaultRatePerSec
		}
		if s.CacheTTL <= 0 {
			s.CacheTTL = c.ProviderCache.TTL
		}
	}
}

func setIf(target *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*target = v
	}
}

func fillIf(target *string, env string) {
	if *target == "" {
		setIf(target, env)
	}
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Cache: CacheConfig{
			Dir:           "./data/cache",
			URLMaxAge:     7 * 24 * time.Hour,
			ContentMaxAge: 30 * 24 * time.Hour,
			PurgeInterval: 24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			Method:           string(domain.MethodStandard),
			Workers:          8,
			PerSourceLimit:   defaultSourceLimit,
			DiscoveryTimeout: 60 * time.Second,
			ExtractTimeout:   45 * time.Second,
			EvaluateTimeout:  90 * time.Second,
			QualityFloor:     7,
			MinTextLength:    100,
			MaxTextLength:    25000,
		},
		Rubric: RubricConfig{
			Criteria:          domain.DefaultCriteria(),
			Min:               1,
			Max:               10,
			StrengthThreshold: 7,
		},
		Scoring: ScoringConfig{
			Provider: "openai",
			ChatGPT: ChatGPTConfig{
				Endpoint:    "https://api.openai.com/v1/chat/completions",
				Model:       "gpt-4o-mini",
				Timeout:     60 * time.Second,
				MaxAttempts: 3,
			},
			Cohere: CohereConfig{Model: "command-r-plus", Timeout: 60 * time.Second},
		},
		Sources: []SourceConfig{
			{Name: KindSearch, Kind: KindSearch, Endpoint: "https://api.tavily.com/search"},
			{
				Name: KindReddit,
				Kind: KindReddit,
				Targets: []TargetConfig{
					{Name: "ExperiencedDevs"},
					{Name: "cscareerquestions"},
					{Name: "softwareengineering"},
					{Name: "programming"},
					{Name: "engineeringmanagement"},
					{Name: "devops"},
				},
			},
			{
				Name: KindSubstack,
				Kind: KindSubstack,
				Targets: []TargetConfig{
					{Name: "pragmaticengineer"},
					{Name: "lethain"},
					{Name: "theengineeringmanager"},
					{Name: "softwareleadweekly"},
					{Name: "staffeng"},
				},
			},
			{Name: KindYouTube, Kind: KindYouTube},
			{Name: KindArxiv, Kind: KindArxiv, Endpoint: "https://export.arxiv.org/api/query"},
			{Name: KindGitHub, Kind: KindGitHub, Endpoint: "https://api.github.com"},
			{
				Name: KindBlogs,
				Kind: KindBlogs,
				Targets: []TargetConfig{
					{Name: "Spotify Engineering", URL: "https://engineering.atspotify.com/category/engineering-culture/", ItemSelector: "article.post"},
					{Name: "Netflix Tech Blog", URL: "https://netflixtechblog.com/tagged/engineering-management", ItemSelector: "div.postArticle"},
					{Name: "Slack Engineering", URL: "https://slack.engineering/", ItemSelector: "article.post"},
					{Name: "Dropbox Tech Blog", URL: "https://dropbox.tech/", ItemSelector: "a.post-block"},
				},
			},
		},
		ProviderCache: ProviderCacheConfig{
			Backend: "memory",
			Size:    defaultProviderSize,
			TTL:     defaultProviderTTL,
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "contentcurator:"},
		},
		Notifications: NotificationConfig{Telegram: TelegramConfig{TopN: 5}},
	}
}
