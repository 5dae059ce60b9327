package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LedgerConfig holds the ledger, payroll and collaborator settings.
type LedgerConfig struct {
	AdminID         string
	AdminName       string
	InitialMoney    int64
	TaxAccountID    string
	TaxRatePercent  int64
	TaxFreeAccounts []string
	AdminTaxFree    bool
	BasicIncome     int64

	PayrollEnabled  bool
	PayrollSchedule string

	DirectoryURL    string
	DirectoryAPIKey string
	NameCacheTTL    time.Duration

	RabbitMQURL string
}

// LoadLedgerConfig returns the ledger configuration with defaults applied.
func LoadLedgerConfig() (*LedgerConfig, error) {
	viper.SetDefault("ledger.admin_id", "0")
	viper.SetDefault("ledger.admin_name", "Banque centrale")
	viper.SetDefault("ledger.initial_money", 1000000000)
	viper.SetDefault("ledger.tax_account_id", "1")
	viper.SetDefault("ledger.tax_rate_percent", 10)
	viper.SetDefault("ledger.tax_free_accounts", []string{})
	viper.SetDefault("ledger.admin_tax_free", true)
	viper.SetDefault("ledger.basic_income", 16000)
	viper.SetDefault("payroll.enabled", true)
	viper.SetDefault("payroll.schedule", "0 0 1 * *")
	viper.SetDefault("directory.url", "")
	viper.SetDefault("directory.api_key", "")
	viper.SetDefault("directory.name_cache_ttl", 24*time.Hour)
	viper.SetDefault("rabbitmq.url", "")

	cfg := &LedgerConfig{
		AdminID:         strings.TrimSpace(viper.GetString("ledger.admin_id")),
		AdminName:       strings.TrimSpace(viper.GetString("ledger.admin_name")),
		InitialMoney:    viper.GetInt64("ledger.initial_money"),
		TaxAccountID:    strings.TrimSpace(viper.GetString("ledger.tax_account_id")),
		TaxRatePercent:  viper.GetInt64("ledger.tax_rate_percent"),
		TaxFreeAccounts: splitList(viper.GetStringSlice("ledger.tax_free_accounts")),
		AdminTaxFree:    viper.GetBool("ledger.admin_tax_free"),
		BasicIncome:     viper.GetInt64("ledger.basic_income"),
		PayrollEnabled:  viper.GetBool("payroll.enabled"),
		PayrollSchedule: viper.GetString("payroll.schedule"),
		DirectoryURL:    strings.TrimSpace(viper.GetString("directory.url")),
		DirectoryAPIKey: viper.GetString("directory.api_key"),
		NameCacheTTL:    viper.GetDuration("directory.name_cache_ttl"),
		RabbitMQURL:     strings.TrimSpace(viper.GetString("rabbitmq.url")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TaxFreeIDs returns the accounts that neither pay nor cause tax: the
// configured extras, plus the administrative account when AdminTaxFree is
// set. With AdminTaxFree off, salaries paid by the administrator are taxed.
func (c *LedgerConfig) TaxFreeIDs() []string {
	ids := []string{}
	if c.AdminTaxFree {
		ids = append(ids, c.AdminID)
	}
	for _, id := range c.TaxFreeAccounts {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *LedgerConfig) validate() error {
	switch {
	case c.AdminID == "":
		return fmt.Errorf("ledger.admin_id must be set")
	case c.TaxAccountID == "":
		return fmt.Errorf("ledger.tax_account_id must be set")
	case c.AdminID == c.TaxAccountID:
		return fmt.Errorf("ledger.admin_id and ledger.tax_account_id must differ")
	case c.TaxRatePercent < 0 || c.TaxRatePercent > 99:
		return fmt.Errorf("ledger.tax_rate_percent must be between 0 and 99, got %d", c.TaxRatePercent)
	case c.InitialMoney < 0:
		return fmt.Errorf("ledger.initial_money must not be negative")
	case c.BasicIncome < 0:
		return fmt.Errorf("ledger.basic_income must not be negative")
	case c.PayrollEnabled && strings.TrimSpace(c.PayrollSchedule) == "":
		return fmt.Errorf("payroll.schedule must be set when payroll is enabled")
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated value,
// which is how lists arrive from environment variables.
func splitList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
