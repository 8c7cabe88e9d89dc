package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanTier maps a minimum transaction amount to a premium plan name.
type PlanTier struct {
	Name      string  `mapstructure:"name"`
	MinAmount float64 `mapstructure:"minAmount"`
}

type PlansConfig struct {
	Tiers []PlanTier `mapstructure:"tiers"`
}

const UnknownPlanTier = "unknown"

func DefaultPlansConfig() PlansConfig {
	return PlansConfig{
		Tiers: []PlanTier{
			{Name: "vip", MinAmount: 30000},
			{Name: "premium", MinAmount: 10000},
			{Name: "plus", MinAmount: 1},
		},
	}
}

// Classify returns the highest tier whose threshold the amount reaches.
func (c PlansConfig) Classify(amount float64) string {
	for _, tier := range c.Tiers {
		if amount >= tier.MinAmount {
			return tier.Name
		}
	}
	return UnknownPlanTier
}

type PlanTierHolder struct {
	current atomic.Value // holds PlansConfig
}

func NewPlanTierHolder(log *zap.Logger) (*PlanTierHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.plans")

	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/matchpay")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PLANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
		v.SetDefault("plans.tiers", DefaultPlansConfig().Tiers)
	}

	cfg, err := decodePlans(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPlanTierHolder(cfg)
	if !fileFound {
		log.Info("plans config file not found, using built-in tiers")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePlans(v)
		if err != nil {
			log.Warn("plans config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plans config reloaded", zap.String("file", e.Name), zap.Int("tiers", len(updated.Tiers)))
	})

	return holder, nil
}

// NewStaticPlanTierHolder builds a holder that never reloads.
func NewStaticPlanTierHolder(cfg PlansConfig) *PlanTierHolder {
	holder := &PlanTierHolder{}
	holder.current.Store(normalizePlans(cfg))
	return holder
}

func (h *PlanTierHolder) Get() PlansConfig {
	if h == nil {
		return normalizePlans(DefaultPlansConfig())
	}
	return h.current.Load().(PlansConfig)
}

func decodePlans(v *viper.Viper) (PlansConfig, error) {
	var cfg PlansConfig
	if err := v.UnmarshalKey("plans", &cfg); err != nil {
		return PlansConfig{}, err
	}
	if err := validatePlans(cfg); err != nil {
		return PlansConfig{}, err
	}
	return normalizePlans(cfg), nil
}

func validatePlans(cfg PlansConfig) error {
	if len(cfg.Tiers) == 0 {
		return errors.New("plans.tiers cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Tiers))
	for i, tier := range cfg.Tiers {
		name := strings.TrimSpace(tier.Name)
		if name == "" {
			return fmt.Errorf("plans.tiers[%d].name is required", i)
		}
		if tier.MinAmount < 0 {
			return fmt.Errorf("plans.tiers[%d].minAmount must not be negative", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("plans.tiers[%d].name %q is duplicated", i, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// normalizePlans orders tiers from the highest threshold down.
func normalizePlans(cfg PlansConfig) PlansConfig {
	tiers := make([]PlanTier, len(cfg.Tiers))
	copy(tiers, cfg.Tiers)
	for i := range tiers {
		tiers[i].Name = strings.TrimSpace(tiers[i].Name)
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinAmount > tiers[j].MinAmount
	})
	return PlansConfig{Tiers: tiers}
}
