package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// 趋势不利方向
const (
	AdverseIncreasing = "increasing"
	AdverseDecreasing = "decreasing"
	AdverseBoth       = "both"
)

// MetricRule 单个指标的规则条目（阈值报警与趋势报警共用）
// 新增指标只需增加配置条目，不需要新增代码路径
type MetricRule struct {
	Metric string `yaml:"metric"`

	// 摄入校验域（超出视为非法读数，在边界拒绝）
	ValidMin float64 `yaml:"valid_min"`
	ValidMax float64 `yaml:"valid_max"`

	// 正常范围
	NormalMin float64 `yaml:"normal_min"`
	NormalMax float64 `yaml:"normal_max"`

	// 临界边界（risk_score 在此处达到 1）
	CriticalMin float64 `yaml:"critical_min"`
	CriticalMax float64 `yaml:"critical_max"`

	// 趋势判定阈值 ε（每小时变化量），避免噪声引起的趋势翻转
	TrendEpsilon float64 `yaml:"trend_epsilon"`

	// 趋势不利方向：increasing / decreasing / both
	AdverseDirection string `yaml:"adverse_direction"`
}

type rulesFile struct {
	Metrics []MetricRule `yaml:"metrics"`
}

// LoadRules 加载指标规则表
// path 为空时使用内置默认规则；文件中的条目整体替换默认表
func LoadRules(path string) ([]MetricRule, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(f.Metrics) == 0 {
		return nil, fmt.Errorf("rules file contains no metrics: %s", path)
	}

	for _, r := range f.Metrics {
		if err := validateRule(r); err != nil {
			return nil, fmt.Errorf("invalid rule for %q: %w", r.Metric, err)
		}
	}

	return f.Metrics, nil
}

func validateRule(r MetricRule) error {
	if r.Metric == "" {
		return fmt.Errorf("metric name is required")
	}
	if r.NormalMin >= r.NormalMax {
		return fmt.Errorf("normal range is empty: [%v, %v]", r.NormalMin, r.NormalMax)
	}
	if r.CriticalMin > r.NormalMin || r.CriticalMax < r.NormalMax {
		return fmt.Errorf("critical bounds must enclose normal range")
	}
	if r.TrendEpsilon < 0 {
		return fmt.Errorf("trend_epsilon must be >= 0")
	}
	switch r.AdverseDirection {
	case AdverseIncreasing, AdverseDecreasing, AdverseBoth:
	default:
		return fmt.Errorf("unknown adverse_direction: %q", r.AdverseDirection)
	}
	return nil
}

// DefaultRules 内置默认规则表
// 范围取自常用成人参考值，ε 取正常范围宽度的 5%（每小时）
func DefaultRules() []MetricRule {
	return []MetricRule{
		{
			Metric:           "heart_rate",
			ValidMin:         20, ValidMax: 300,
			NormalMin:        60, NormalMax: 100,
			CriticalMin:      40, CriticalMax: 120,
			TrendEpsilon:     2.0,
			AdverseDirection: AdverseBoth,
		},
		{
			Metric:           "respiratory_rate",
			ValidMin:         2, ValidMax: 80,
			NormalMin:        12, NormalMax: 20,
			CriticalMin:      8, CriticalMax: 25,
			TrendEpsilon:     0.4,
			AdverseDirection: AdverseBoth,
		},
		{
			Metric:           "temperature",
			ValidMin:         30, ValidMax: 45,
			NormalMin:        36, NormalMax: 38,
			CriticalMin:      35, CriticalMax: 39,
			TrendEpsilon:     0.1,
			AdverseDirection: AdverseIncreasing,
		},
		{
			Metric:           "oxygen_saturation",
			ValidMin:         50, ValidMax: 100,
			NormalMin:        95, NormalMax: 100,
			CriticalMin:      90, CriticalMax: 100,
			TrendEpsilon:     0.25,
			AdverseDirection: AdverseDecreasing,
		},
		{
			Metric:           "systolic",
			ValidMin:         50, ValidMax: 260,
			NormalMin:        90, NormalMax: 140,
			CriticalMin:      80, CriticalMax: 160,
			TrendEpsilon:     2.5,
			AdverseDirection: AdverseIncreasing,
		},
		{
			Metric:           "diastolic",
			ValidMin:         30, ValidMax: 160,
			NormalMin:        60, NormalMax: 90,
			CriticalMin:      50, CriticalMax: 100,
			TrendEpsilon:     1.5,
			AdverseDirection: AdverseIncreasing,
		},
	}
}
