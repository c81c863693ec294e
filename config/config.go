package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
)

type Config struct {
	Debug    bool                 `json:"debug" toml:"debug"`
	Server   *ServerConfig        `json:"server" toml:"server"`
	Database *DatabaseConfig      `json:"database" toml:"database"`
	LLM      *LLMConfig           `json:"llm" toml:"llm"`
	Browser  *BrowserConfig       `json:"browser" toml:"browser"`
	Executor *ExecutorConfig      `json:"executor" toml:"executor"`
	Snapshot *SnapshotConfig      `json:"snapshot" toml:"snapshot"`
	Campaign *CampaignConfig      `json:"campaign" toml:"campaign"`
	Search   *SearchConfig        `json:"search" toml:"search"`
	Log      *logger.LoggerConfig `json:"log,omitempty" toml:"log,omitempty"`
}

type ServerConfig struct {
	Port string `json:"port" toml:"port"`
	Host string `json:"host" toml:"host"`
}

type DatabaseConfig struct {
	Path string `json:"path" toml:"path"`
}

type LLMConfig struct {
	Provider          string  `json:"provider" toml:"provider"`
	APIKey            string  `json:"api_key" toml:"api_key"`
	Model             string  `json:"model" toml:"model"`
	Temperature       float32 `json:"temperature" toml:"temperature"`
	RequestsPerMinute int     `json:"requests_per_minute" toml:"requests_per_minute"`
	MaxPageChars      int     `json:"max_page_chars" toml:"max_page_chars"`
}

type BrowserConfig struct {
	// Driver 选择浏览器后端: rod 或 chromedp
	Driver      string `json:"driver" toml:"driver"`
	BinPath     string `json:"bin_path" toml:"bin_path"`
	UserDataDir string `json:"user_data_dir" toml:"user_data_dir"`
	// ControlURL 非空时连接远程浏览器会话而不是本地启动
	ControlURL string `json:"control_url,omitempty" toml:"control_url,omitempty"`
	Headless   bool   `json:"headless" toml:"headless"`
}

// ExecutorConfig 动作执行相关的等待时间,单位毫秒
type ExecutorConfig struct {
	VisibleTimeoutMs     int    `json:"visible_timeout_ms" toml:"visible_timeout_ms"`
	ClickSettleMs        int    `json:"click_settle_ms" toml:"click_settle_ms"`
	FillSettleMs         int    `json:"fill_settle_ms" toml:"fill_settle_ms"`
	NetworkIdleTimeoutMs int    `json:"network_idle_timeout_ms" toml:"network_idle_timeout_ms"`
	DefaultWaitMs        int    `json:"default_wait_ms" toml:"default_wait_ms"`
	VerifyTimeoutMs      int    `json:"verify_timeout_ms" toml:"verify_timeout_ms"`
	ScreenshotDir        string `json:"screenshot_dir" toml:"screenshot_dir"`
}

type SnapshotConfig struct {
	MaxDepth            int  `json:"max_depth" toml:"max_depth"`
	IncludeHighlighting bool `json:"include_highlighting" toml:"include_highlighting"`
	CollectMetrics      bool `json:"collect_metrics" toml:"collect_metrics"`
}

type CampaignConfig struct {
	MaxSteps               int `json:"max_steps" toml:"max_steps"`
	MaxConsecutiveFailures int `json:"max_consecutive_failures" toml:"max_consecutive_failures"`
	DegenerateRetries      int `json:"degenerate_retries" toml:"degenerate_retries"`
	DegenerateRetryDelayMs int `json:"degenerate_retry_delay_ms" toml:"degenerate_retry_delay_ms"`
	NavigationTimeoutMs    int `json:"navigation_timeout_ms" toml:"navigation_timeout_ms"`
}

// SearchConfig 目标应用搜索区域与保存按钮的选择器
type SearchConfig struct {
	HeaderSelector    string   `json:"header_selector" toml:"header_selector"`
	InputSelector     string   `json:"input_selector" toml:"input_selector"`
	ResultsSelector   string   `json:"results_selector" toml:"results_selector"`
	NoResultsSelector string   `json:"no_results_selector" toml:"no_results_selector"`
	SaveButtonText    string   `json:"save_button_text" toml:"save_button_text"`
	CheckboxSelectors []string `json:"checkbox_selectors" toml:"checkbox_selectors"`
}

// DefaultExecutor 返回默认的执行器等待时间
func DefaultExecutor() *ExecutorConfig {
	return &ExecutorConfig{
		VisibleTimeoutMs:     20000,
		ClickSettleMs:        1000,
		FillSettleMs:         500,
		NetworkIdleTimeoutMs: 20000,
		DefaultWaitMs:        2000,
		VerifyTimeoutMs:      5000,
		ScreenshotDir:        "./screenshots",
	}
}

func DefaultSnapshot() *SnapshotConfig {
	return &SnapshotConfig{MaxDepth: 20, IncludeHighlighting: true, CollectMetrics: true}
}

func DefaultCampaign() *CampaignConfig {
	return &CampaignConfig{
		MaxSteps:               30,
		MaxConsecutiveFailures: 3,
		DegenerateRetries:      3,
		DegenerateRetryDelayMs: 1000,
		NavigationTimeoutMs:    30000,
	}
}

func DefaultSearch() *SearchConfig {
	return &SearchConfig{
		HeaderSelector:    ".search-tab-filters-list-item-header",
		InputSelector:     `input[placeholder="Search"]`,
		ResultsSelector:   `[class*="search-result"]`,
		NoResultsSelector: `[class*="no-results"]`,
		SaveButtonText:    "Save to List",
		CheckboxSelectors: []string{
			`input[type="checkbox"]`,
			`[role="checkbox"]`,
			`label[class*="checkbox"]`,
			`[class*="checkbox"]`,
		},
	}
}

func DefaultLLM() *LLMConfig {
	return &LLMConfig{
		Provider:          "gemini",
		Model:             "gemini-2.5-flash",
		Temperature:       0.2,
		RequestsPerMinute: 30,
		MaxPageChars:      6000,
	}
}

// Default 返回完整的默认配置
func Default() *Config {
	return &Config{
		Server: &ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: &DatabaseConfig{
			Path: "./data/resquared.db",
		},
		LLM: DefaultLLM(),
		Browser: &BrowserConfig{
			Driver:      "rod",
			BinPath:     findChromeBin(),
			UserDataDir: "./chrome_user_data",
			Headless:    true,
		},
		Executor: DefaultExecutor(),
		Snapshot: DefaultSnapshot(),
		Campaign: DefaultCampaign(),
		Search:   DefaultSearch(),
		Log: &logger.LoggerConfig{
			Level: "info",
			File:  "./log/resquared.log",
		},
	}
}

// findChromeBin 根据系统查找默认的 Chrome 路径
func findChromeBin() string {
	if envPath := os.Getenv("CHROME_BIN_PATH"); envPath != "" {
		return envPath
	}
	commonPaths := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome-stable",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
		"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		for _, dir := range []string{"./data", "./log"} {
			if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
				os.Mkdir(dir, 0o755)
			}
		}
		defConfig := Default()
		// 配置文件不存在时把默认配置写到 path
		if os.IsNotExist(err) {
			if cfgData, mErr := toml.Marshal(defConfig); mErr == nil {
				os.WriteFile(path, cfgData, 0o644)
			}
		}
		applyEnv(defConfig)
		return defConfig, nil
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	applyEnv(&cfg)
	return &cfg, nil
}

// fillDefaults 确保所有必需的配置项都有值
func (c *Config) fillDefaults() {
	def := Default()
	if c.Server == nil {
		c.Server = def.Server
	}
	if c.Database == nil {
		c.Database = def.Database
	}
	if c.LLM == nil {
		c.LLM = def.LLM
	}
	if c.Browser == nil {
		c.Browser = def.Browser
	}
	if c.Browser.Driver == "" {
		c.Browser.Driver = "rod"
	}
	if c.Executor == nil {
		c.Executor = def.Executor
	}
	fillInt(&c.Executor.VisibleTimeoutMs, def.Executor.VisibleTimeoutMs)
	fillInt(&c.Executor.ClickSettleMs, def.Executor.ClickSettleMs)
	fillInt(&c.Executor.FillSettleMs, def.Executor.FillSettleMs)
	fillInt(&c.Executor.NetworkIdleTimeoutMs, def.Executor.NetworkIdleTimeoutMs)
	fillInt(&c.Executor.DefaultWaitMs, def.Executor.DefaultWaitMs)
	fillInt(&c.Executor.VerifyTimeoutMs, def.Executor.VerifyTimeoutMs)
	if c.Snapshot == nil {
		c.Snapshot = def.Snapshot
	}
	fillInt(&c.Snapshot.MaxDepth, def.Snapshot.MaxDepth)
	if c.Campaign == nil {
		c.Campaign = def.Campaign
	}
	fillInt(&c.Campaign.MaxSteps, def.Campaign.MaxSteps)
	fillInt(&c.Campaign.MaxConsecutiveFailures, def.Campaign.MaxConsecutiveFailures)
	fillInt(&c.Campaign.DegenerateRetries, def.Campaign.DegenerateRetries)
	fillInt(&c.Campaign.DegenerateRetryDelayMs, def.Campaign.DegenerateRetryDelayMs)
	fillInt(&c.Campaign.NavigationTimeoutMs, def.Campaign.NavigationTimeoutMs)
	if c.Search == nil {
		c.Search = def.Search
	}
	if len(c.Search.CheckboxSelectors) == 0 {
		c.Search.CheckboxSelectors = def.Search.CheckboxSelectors
	}
	if c.Log == nil {
		c.Log = &logger.LoggerConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		}
	}
}

func fillInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// applyEnv 从环境变量覆盖敏感或部署相关的配置
func applyEnv(c *Config) {
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		c.LLM.APIKey = apiKey
	}
	if u := os.Getenv("BROWSER_CONTROL_URL"); u != "" {
		c.Browser.ControlURL = u
	}
	if bin := os.Getenv("CHROME_BIN_PATH"); bin != "" {
		c.Browser.BinPath = bin
	}
}

// Ms 把毫秒配置转换为 time.Duration
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
