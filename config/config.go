package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider families. The registry walks them in ProviderOrder.
const (
	FamilyGemini   = "gemini"
	FamilyGroq     = "groq"
	FamilyOpenAI   = "openai"
	FamilyDeepSeek = "deepseek"
)

const (
	DiscoveryStatic = "static"
	DiscoveryLLM    = "llm"

	SearchTavily     = "tavily"
	SearchDuckDuckGo = "duckduckgo"
)

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DBPath       string `json:"db_path"`

	// Completion client
	ProviderOrder  []string            `json:"provider_order"`
	FamilyModels   map[string][]string `json:"family_models"`
	RetryBudget    int                 `json:"retry_budget"`
	RetryDelaysSec []int               `json:"retry_delays_sec"`
	TimeoutPause   time.Duration       `json:"timeout_pause"`
	OtherPause     time.Duration       `json:"other_pause"`
	Temperature    float32             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens"`
	OpenAIBaseURL  string              `json:"openai_base_url"`
	GroqBaseURL    string              `json:"groq_base_url"`

	// Scanner
	LookbackDays  int    `json:"lookback_days"`
	MaxWorkers    int    `json:"max_workers"`
	TopN          int    `json:"top_n"`
	DiscoveryMode string `json:"discovery_mode"`

	// Research crawl
	SearchBackend  string        `json:"search_backend"`
	CrawlPacing    time.Duration `json:"crawl_pacing"`
	SearchQPS      float64       `json:"search_qps"`
	MaxSearchItems int           `json:"max_search_items"`

	// Orchestrator
	ConfidenceStageCount int  `json:"confidence_stage_count"`
	UseGraph             bool `json:"use_graph"`

	Debug        bool   `json:"debug"`
	CacheEnabled bool   `json:"cache_enabled"`
	MetricsAddr  string `json:"metrics_addr"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`

	// Longport API Configuration
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	// AI Model API Keys
	GoogleAPIKey   string `json:"google_api_key"`
	GroqAPIKey     string `json:"groq_api_key"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`

	TavilyAPIKey string `json:"tavily_api_key"`
}

// DefaultFamilyModels lists the models tried for each credential, in order.
func DefaultFamilyModels() map[string][]string {
	return map[string][]string{
		FamilyGemini:   {"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"},
		FamilyGroq:     {"deepseek-r1-distill-llama-70b", "llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
		FamilyOpenAI:   {"gpt-4o-mini"},
		FamilyDeepSeek: {"deepseek-chat"},
	}
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

// DefaultConfigWithRoot builds defaults rooted at dir without touching the environment.
func DefaultConfigWithRoot(dir string) *Config {
	return &Config{
		ProjectDir:   dir,
		ResultsDir:   filepath.Join(dir, "results"),
		DataDir:      filepath.Join(dir, "data"),
		DataCacheDir: filepath.Join(dir, "data", "cache"),
		DBPath:       filepath.Join(dir, "data", "thesisgo.db"),

		ProviderOrder:  []string{FamilyGemini, FamilyGroq, FamilyOpenAI, FamilyDeepSeek},
		FamilyModels:   DefaultFamilyModels(),
		RetryBudget:    3,
		RetryDelaysSec: []int{1, 2, 5, 10, 30},
		TimeoutPause:   2 * time.Second,
		OtherPause:     time.Second,
		Temperature:    0.7,
		MaxTokens:      4000,
		GroqBaseURL:    "https://api.groq.com/openai/v1",

		LookbackDays:  5,
		MaxWorkers:    3,
		TopN:          10,
		DiscoveryMode: DiscoveryStatic,

		SearchBackend:  SearchTavily,
		CrawlPacing:    time.Second,
		SearchQPS:      1,
		MaxSearchItems: 5,

		ConfidenceStageCount: 5,

		CacheEnabled:  true,
		EinoDebugPort: 52538,
	}
}

// ApplyEnv overlays .env and the process environment on c. Values found
// there win over whatever the config file holds.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()
	c.loadFromEnv()
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("THESISGO_DB_PATH"); val != "" {
		c.DBPath = val
	}

	if val := os.Getenv("THESISGO_PROVIDER_ORDER"); val != "" {
		c.ProviderOrder = splitList(val)
	}
	if val := os.Getenv("THESISGO_RETRY_BUDGET"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.RetryBudget = v
		}
	}
	if val := os.Getenv("THESISGO_LOOKBACK_DAYS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.LookbackDays = v
		}
	}
	if val := os.Getenv("THESISGO_MAX_WORKERS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxWorkers = v
		}
	}
	if val := os.Getenv("THESISGO_TOP_N"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.TopN = v
		}
	}
	if val := os.Getenv("THESISGO_DISCOVERY_MODE"); val != "" {
		c.DiscoveryMode = strings.ToLower(val)
	}
	if val := os.Getenv("THESISGO_SEARCH_BACKEND"); val != "" {
		c.SearchBackend = strings.ToLower(val)
	}
	if val := os.Getenv("THESISGO_USE_GRAPH"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.UseGraph = enabled
		}
	}

	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("THESISGO_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("THESISGO_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}

	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}

	if val := os.Getenv("GOOGLE_API_KEY"); val != "" {
		c.GoogleAPIKey = val
	}
	if val := os.Getenv("GROQ_API_KEY"); val != "" {
		c.GroqAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		c.OpenAIBaseURL = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("TAVILY_API_KEY"); val != "" {
		c.TavilyAPIKey = val
	}
}

// Credentials reports which provider families have an API key configured.
func (c *Config) Credentials() map[string]bool {
	return map[string]bool{
		FamilyGemini:   c.GoogleAPIKey != "",
		FamilyGroq:     c.GroqAPIKey != "",
		FamilyOpenAI:   c.OpenAIAPIKey != "",
		FamilyDeepSeek: c.DeepSeekAPIKey != "",
	}
}

// HasLongport is true when all three Longport credentials are present.
func (c *Config) HasLongport() bool {
	return c.LongportAppKey != "" && c.LongportAppSecret != "" && c.LongportAccessToken != ""
}

// RetryDelays converts RetryDelaysSec into durations.
func (c *Config) RetryDelays() []time.Duration {
	out := make([]time.Duration, 0, len(c.RetryDelaysSec))
	for _, s := range c.RetryDelaysSec {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.RetryBudget < 1 {
		errs = append(errs, fmt.Errorf("retry_budget must be >= 1, got %d", c.RetryBudget))
	}
	if len(c.RetryDelaysSec) == 0 {
		errs = append(errs, errors.New("retry_delays_sec must not be empty"))
	}
	for _, d := range c.RetryDelaysSec {
		if d < 0 {
			errs = append(errs, fmt.Errorf("retry delay %d is negative", d))
			break
		}
	}
	if c.LookbackDays < 1 {
		errs = append(errs, fmt.Errorf("lookback_days must be >= 1, got %d", c.LookbackDays))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max_workers must be >= 1, got %d", c.MaxWorkers))
	}
	if c.TopN < 1 {
		errs = append(errs, fmt.Errorf("top_n must be >= 1, got %d", c.TopN))
	}
	if c.ConfidenceStageCount < 1 {
		errs = append(errs, fmt.Errorf("confidence_stage_count must be >= 1, got %d", c.ConfidenceStageCount))
	}
	switch c.DiscoveryMode {
	case DiscoveryStatic, DiscoveryLLM:
	default:
		errs = append(errs, fmt.Errorf("unknown discovery_mode %q", c.DiscoveryMode))
	}
	switch c.SearchBackend {
	case SearchTavily, SearchDuckDuckGo:
	default:
		errs = append(errs, fmt.Errorf("unknown search_backend %q", c.SearchBackend))
	}
	for _, family := range c.ProviderOrder {
		switch family {
		case FamilyGemini, FamilyGroq, FamilyOpenAI, FamilyDeepSeek:
		default:
			errs = append(errs, fmt.Errorf("unknown provider family %q", family))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	if c.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
