// Package config loads the statement server settings from a YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/mcclellann/loanStatement/pkg/statement"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string   `yaml:"listen_addr" validate:"required"`
	Database   Database `yaml:"database"`
	OutputDir  string   `yaml:"output_dir"`
	Company    Company  `yaml:"company"`
	Bank       Bank     `yaml:"bank"`
	Assets     Assets   `yaml:"assets"`
}

type Database struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite3 postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

type Company struct {
	Name       string `yaml:"name" validate:"required"`
	Address    string `yaml:"address"`
	Phone      string `yaml:"phone"`
	Email      string `yaml:"email" validate:"omitempty,email"`
	PageTitle  string `yaml:"page_title"`
	Disclaimer string `yaml:"disclaimer"`
}

type Bank struct {
	Name    string `yaml:"name" validate:"required"`
	Account string `yaml:"account" validate:"required,numeric"`
	Branch  string `yaml:"branch" validate:"required,numeric"`
}

// Assets are image file names, resolved against Dir unless absolute.
type Assets struct {
	Dir         string `yaml:"dir"`
	Logo        string `yaml:"logo"`
	Watermark   string `yaml:"watermark"`
	AddressIcon string `yaml:"address_icon"`
	PhoneIcon   string `yaml:"phone_icon"`
	EmailIcon   string `yaml:"email_icon"`
}

// Default returns the settings the lender has always used.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Database:   Database{Driver: "sqlite3", DSN: "loan_statements.db"},
		OutputDir:  "statements",
		Company: Company{
			Name:       "Ntirhisano Venture Capital",
			Address:    "98 Spaanriet Street, The Reeds Ext 45, 0156",
			Phone:      "(012) 006 0019",
			Email:      "info@ntirhisano.com",
			PageTitle:  "Loan Statement",
			Disclaimer: "*Penalty fee charged at 10% per month of the total outstanding",
		},
		Bank: Bank{Name: "First National Bank", Account: "62875263221", Branch: "255355"},
		Assets: Assets{
			Dir:         "assets",
			Logo:        "logo.png",
			Watermark:   "transparent_watermark.png",
			AddressIcon: "icon_address.png",
			PhoneIcon:   "icon_phone.png",
			EmailIcon:   "icon_email.png",
		},
	}
}

// Environment variables that override the file.
const (
	EnvListenAddr = "LOAN_LISTEN_ADDR"
	EnvDBDriver   = "LOAN_DB_DRIVER"
	EnvDBDSN      = "LOAN_DB_DSN"
	EnvOutputDir  = "LOAN_OUTPUT_DIR"
	EnvAssetDir   = "LOAN_ASSET_DIR"
)

// Load starts from Default, applies the YAML file at path if it exists, then
// the environment, and validates the result. Call godotenv.Load first to
// pick up a .env file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for key, field := range map[string]*string{
		EnvListenAddr: &c.ListenAddr,
		EnvDBDriver:   &c.Database.Driver,
		EnvDBDSN:      &c.Database.DSN,
		EnvOutputDir:  &c.OutputDir,
		EnvAssetDir:   &c.Assets.Dir,
	} {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Branding is the text printed on statements.
func (c *Config) Branding() statement.Branding {
	return statement.Branding{
		CompanyName: c.Company.Name,
		Address:     c.Company.Address,
		Phone:       c.Company.Phone,
		Email:       c.Company.Email,
		PageTitle:   c.Company.PageTitle,
		Disclaimer:  c.Company.Disclaimer,
		BankName:    c.Bank.Name,
		BankAccount: c.Bank.Account,
		BranchCode:  c.Bank.Branch,
	}
}

// StatementAssets resolves the image paths.
func (c *Config) StatementAssets() statement.Assets {
	return statement.Assets{
		Logo:        c.Assets.path(c.Assets.Logo),
		Watermark:   c.Assets.path(c.Assets.Watermark),
		AddressIcon: c.Assets.path(c.Assets.AddressIcon),
		PhoneIcon:   c.Assets.path(c.Assets.PhoneIcon),
		EmailIcon:   c.Assets.path(c.Assets.EmailIcon),
	}
}

func (a Assets) path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(a.Dir, name)
}
