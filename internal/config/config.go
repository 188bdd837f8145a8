package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mspro-labs/cfe-tariffs/internal/models"
)

// AppConfig holds infrastructure config from standard env vars
type AppConfig struct {
	DBPath       string
	ConfigPath   string // Path to the YAML site config
	OutputDir    string
	Port         string
	LogLevel     string
	Translator   string // gemini | google | none
	GeminiAPIKey string
	GeminiModel  string
}

// SiteConfig holds everything specific to the driven web application (from YAML)
type SiteConfig struct {
	Fares        []Fare   `yaml:"fares"`
	Controls     Controls `yaml:"controls"`
	TableSelect  string   `yaml:"table_selector"`
	Placeholders []string `yaml:"placeholders"`
	Periods      Window   `yaml:"periods"`
	Timing       Timing   `yaml:"timing"`
	DedupeIDs    bool     `yaml:"dedupe_ids"`
}

// Fare is one fare type and the page that serves it.
type Fare struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Controls are the element ids of the cascading selectors.
type Controls struct {
	Year         string `yaml:"year"`
	Month        string `yaml:"month"`
	Region       string `yaml:"region"`
	Municipality string `yaml:"municipality"`
	Division     string `yaml:"division"`
}

// Window is the inclusive period range, formatted YYYY-MM.
type Window struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type Timing struct {
	ElementWait time.Duration `yaml:"element_wait"`
	ReadyWait   time.Duration `yaml:"ready_wait"`
	PreSettle   time.Duration `yaml:"pre_settle"`
	Settle      time.Duration `yaml:"settle"`
}

const cfeBase = "https://app.cfe.mx/Aplicaciones/CCFE/Tarifas/TarifasCREIndustria/Tarifas/"

// DefaultSiteConfig returns the settings for the CFE industrial tariff pages.
func DefaultSiteConfig() *SiteConfig {
	return &SiteConfig{
		Fares: []Fare{
			{Name: "GDMTO", URL: cfeBase + "GranDemandaMTO.aspx"},
			{Name: "GDMTH", URL: cfeBase + "GranDemandaMTH.aspx"},
			{Name: "DIST", URL: cfeBase + "DemandaIndustrialSub.aspx"},
			{Name: "DIT", URL: cfeBase + "DemandaIndustrialTran.aspx"},
		},
		Controls: Controls{
			Year:         "ContentPlaceHolder1_Fecha_ddAnio",
			Month:        "ContentPlaceHolder1_MesVerano3_ddMesConsulta",
			Region:       "ContentPlaceHolder1_EdoMpoDiv_ddEstado",
			Municipality: "ContentPlaceHolder1_EdoMpoDiv_ddMunicipio",
			Division:     "ContentPlaceHolder1_EdoMpoDiv_ddDivision",
		},
		TableSelect:  "table.table-bordered",
		Placeholders: []string{"Seleccione", "Select"},
		Periods:      Window{From: "2024-09", To: "2025-12"},
		Timing: Timing{
			ElementWait: 15 * time.Second,
			ReadyWait:   15 * time.Second,
			PreSettle:   2 * time.Second,
			Settle:      1 * time.Second,
		},
	}
}

// GetAppConfig reads basic infrastructure settings from environment variables.
func GetAppConfig() (AppConfig, error) {
	cfg := AppConfig{
		DBPath:       os.Getenv("DB_PATH"),
		ConfigPath:   os.Getenv("CONFIG_PATH"),
		OutputDir:    os.Getenv("OUTPUT_DIR"),
		Port:         os.Getenv("PORT"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Translator:   os.Getenv("TRANSLATOR"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  os.Getenv("GEMINI_MODEL"),
	}

	// Set defaults if not provided
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./local-data/cfe_tariffs"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = cfg.OutputDir + "/cfe.db"
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = "config.yaml"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Translator == "" {
		cfg.Translator = "google"
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-2.5-flash"
	}

	switch cfg.Translator {
	case "gemini", "google", "none":
	default:
		return cfg, fmt.Errorf("unknown TRANSLATOR %q (want gemini, google or none)", cfg.Translator)
	}

	return cfg, nil
}

// LoadSiteConfig reads the YAML file over the defaults. A missing file yields the defaults.
func LoadSiteConfig(path string) (*SiteConfig, error) {
	cfg := DefaultSiteConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid site config '%s': %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the traversal cannot run without.
func (c *SiteConfig) Validate() error {
	if len(c.Fares) == 0 {
		return errors.New("no fares configured")
	}
	for i, f := range c.Fares {
		if f.Name == "" || f.URL == "" {
			return fmt.Errorf("fare #%d needs both name and url", i+1)
		}
	}
	ctl := c.Controls
	if ctl.Year == "" || ctl.Month == "" || ctl.Region == "" || ctl.Municipality == "" || ctl.Division == "" {
		return errors.New("all five control ids are required")
	}
	if c.TableSelect == "" {
		return errors.New("table_selector is required")
	}
	periods, err := c.PeriodList()
	if err != nil {
		return err
	}
	if len(periods) == 0 {
		return fmt.Errorf("period window %s..%s is empty", c.Periods.From, c.Periods.To)
	}
	return nil
}

// PeriodList expands the configured window in chronological order.
func (c *SiteConfig) PeriodList() ([]models.Period, error) {
	from, err := models.ParsePeriod(c.Periods.From)
	if err != nil {
		return nil, err
	}
	to, err := models.ParsePeriod(c.Periods.To)
	if err != nil {
		return nil, err
	}
	return models.PeriodRange(from, to), nil
}
