// Package strategyconfig loads the persisted strategy configuration document
// into a typed predicate tree, compiled once at load time rather than walked
// dynamically at evaluation time, and carries the surrounding engine/process
// configuration via viper.
package strategyconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sf19-97/spbacktest/pkg/types"
)

// document is the loosely-typed top-level shape. Unknown top-level keys are
// ignored; yaml.v3's default decode behavior already does this.
type document struct {
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Author       string   `yaml:"author"`
	Description  string   `yaml:"description"`
	Dependencies struct {
		Indicators []string `yaml:"indicators"`
		Signals    []string `yaml:"signals"`
	} `yaml:"dependencies"`
	Parameters   map[string]any `yaml:"parameters"`
	Entry        yaml.Node      `yaml:"entry"`
	Exit         yaml.Node      `yaml:"exit"`
	Risk         yaml.Node      `yaml:"risk"`
	SignalConfig map[string]any `yaml:"signal_config"`
}

// Load reads a strategy config file from disk and compiles it.
func Load(path string) (*types.StrategyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, "read strategy file", err)
	}
	return Parse(raw)
}

// Parse compiles the YAML document bytes into a typed StrategyConfig.
func Parse(raw []byte) (*types.StrategyConfig, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, types.NewError(types.ErrConfiguration, "parse strategy YAML", err)
	}

	cfg := &types.StrategyConfig{
		Name:        doc.Name,
		Version:     doc.Version,
		Author:      doc.Author,
		Description: doc.Description,
		Dependencies: types.Dependencies{
			Indicators: doc.Dependencies.Indicators,
			Signals:    doc.Dependencies.Signals,
		},
		Parameters:   doc.Parameters,
		SignalConfig: doc.SignalConfig,
	}

	entry, err := compileEntry(&doc.Entry, cfg.Parameters)
	if err != nil {
		return nil, err
	}
	cfg.Entry = entry

	exit, err := compileExit(&doc.Exit)
	if err != nil {
		return nil, err
	}
	cfg.Exit = exit

	risk, err := compileRisk(&doc.Risk)
	if err != nil {
		return nil, err
	}
	cfg.Risk = risk

	return cfg, nil
}

var entryKeys = map[string]bool{"when": true, "action": true, "size": true}
var exitKeys = map[string]bool{"signal_exit": true, "stop_loss": true, "take_profit": true}
var signalExitKeys = map[string]bool{"when": true, "action": true}
var predicateKeys = map[string]bool{"signal": true, "outputs": true, "allow_substring": true}
var valueBlockKeys = map[string]bool{"value": true}
var riskKeys = map[string]bool{
	"max_drawdown": true, "daily_loss_limit": true, "position_limit": true,
	"max_positions": true, "stop_loss": true, "take_profit": true,
}

func compileEntry(node *yaml.Node, params map[string]any) (types.EntryRule, error) {
	var rule types.EntryRule
	if node.Kind == 0 {
		return rule, nil
	}
	if err := rejectUnknownKeys(node, entryKeys, "entry"); err != nil {
		return rule, err
	}

	whenNode := fieldNode(node, "when")
	when, err := compileWhen(whenNode)
	if err != nil {
		return rule, err
	}
	rule.When = when

	if actionNode := fieldNode(node, "action"); actionNode != nil {
		rule.Action = actionNode.Value
	} else {
		rule.Action = "buy"
	}

	sizeNode := fieldNode(node, "size")
	size, err := resolveSize(sizeNode, params)
	if err != nil {
		return rule, err
	}
	rule.Size = size

	return rule, nil
}

func compileExit(node *yaml.Node) (types.ExitRule, error) {
	var rule types.ExitRule
	if node.Kind == 0 {
		return rule, nil
	}
	if err := rejectUnknownKeys(node, exitKeys, "exit"); err != nil {
		return rule, err
	}

	if seNode := fieldNode(node, "signal_exit"); seNode != nil {
		if err := rejectUnknownKeys(seNode, signalExitKeys, "exit.signal_exit"); err != nil {
			return rule, err
		}
		when, err := compileWhen(fieldNode(seNode, "when"))
		if err != nil {
			return rule, err
		}
		action := "close_all"
		if a := fieldNode(seNode, "action"); a != nil {
			action = a.Value
		}
		rule.SignalExit = &types.SignalExitRule{When: when, Action: action}
	}

	if sl := fieldNode(node, "stop_loss"); sl != nil {
		v, err := compileFractionBlock(sl, "exit.stop_loss")
		if err != nil {
			return rule, err
		}
		rule.StopLoss = v
	}
	if tp := fieldNode(node, "take_profit"); tp != nil {
		v, err := compileFractionBlock(tp, "exit.take_profit")
		if err != nil {
			return rule, err
		}
		rule.TakeProfit = v
	}

	return rule, nil
}

func compileFractionBlock(node *yaml.Node, context string) (*decimal.Decimal, error) {
	if err := rejectUnknownKeys(node, valueBlockKeys, context); err != nil {
		return nil, err
	}
	valueNode := fieldNode(node, "value")
	if valueNode == nil {
		return nil, nil
	}
	f, err := strconv.ParseFloat(valueNode.Value, 64)
	if err != nil {
		return nil, types.NewError(types.ErrConfiguration, context+".value must be numeric", err)
	}
	d := decimal.NewFromFloat(f)
	return &d, nil
}

func compileRisk(node *yaml.Node) (types.RiskConfig, error) {
	var cfg types.RiskConfig
	if node.Kind == 0 {
		return cfg, nil
	}
	if err := rejectUnknownKeys(node, riskKeys, "risk"); err != nil {
		return cfg, err
	}

	if n := fieldNode(node, "max_drawdown"); n != nil {
		v, err := decimalFromNode(n, "risk.max_drawdown")
		if err != nil {
			return cfg, err
		}
		cfg.MaxDrawdown = &v
	}
	if n := fieldNode(node, "daily_loss_limit"); n != nil {
		v, err := decimalFromNode(n, "risk.daily_loss_limit")
		if err != nil {
			return cfg, err
		}
		cfg.DailyLossLimit = &v
	}
	if n := fieldNode(node, "position_limit"); n != nil {
		v, err := decimalFromNode(n, "risk.position_limit")
		if err != nil {
			return cfg, err
		}
		cfg.PositionLimit = &v
	}
	if n := fieldNode(node, "max_positions"); n != nil {
		i, err := strconv.Atoi(n.Value)
		if err != nil {
			return cfg, types.NewError(types.ErrConfiguration, "risk.max_positions must be an integer", err)
		}
		cfg.MaxPositions = &i
	}
	if n := fieldNode(node, "stop_loss"); n != nil {
		v, err := decimalFromNode(n, "risk.stop_loss")
		if err != nil {
			return cfg, err
		}
		cfg.StopLoss = &v
	}
	if n := fieldNode(node, "take_profit"); n != nil {
		v, err := decimalFromNode(n, "risk.take_profit")
		if err != nil {
			return cfg, err
		}
		cfg.TakeProfit = &v
	}

	return cfg, nil
}

func compileWhen(node *yaml.Node) ([]types.Predicate, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, types.NewError(types.ErrConfiguration, "\"when\" must be a list", nil)
	}

	predicates := make([]types.Predicate, 0, len(node.Content))
	for _, item := range node.Content {
		if err := rejectUnknownKeys(item, predicateKeys, "when[]"); err != nil {
			return nil, err
		}
		var p types.Predicate
		if sig := fieldNode(item, "signal"); sig != nil {
			p.SignalToken = sig.Value
		}
		if as := fieldNode(item, "allow_substring"); as != nil {
			p.AllowSubstring = as.Value == "true"
		}
		if outputs := fieldNode(item, "outputs"); outputs != nil {
			constraints, err := compileOutputs(outputs)
			if err != nil {
				return nil, err
			}
			p.Outputs = constraints
		}
		predicates = append(predicates, p)
	}
	return predicates, nil
}

func compileOutputs(node *yaml.Node) (map[string]types.OutputConstraint, error) {
	if node.Kind != yaml.MappingNode {
		return nil, types.NewError(types.ErrConfiguration, "\"outputs\" must be a mapping", nil)
	}
	out := make(map[string]types.OutputConstraint, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		valNode := node.Content[i+1]
		out[key] = compileOutputConstraint(valNode)
	}
	return out, nil
}

// compileOutputConstraint parses the comparator-string convention
// (">", "<", ">=", "<=") versus a plain equality literal.
func compileOutputConstraint(node *yaml.Node) types.OutputConstraint {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		s := node.Value
		for _, op := range []string{">=", "<=", ">", "<"} {
			if strings.HasPrefix(s, op) {
				boundStr := strings.TrimSpace(strings.TrimPrefix(s, op))
				if bound, err := strconv.ParseFloat(boundStr, 64); err == nil {
					return types.OutputConstraint{Op: op, Bound: bound}
				}
			}
		}
	}
	var v any
	_ = node.Decode(&v)
	return types.OutputConstraint{Literal: v}
}

// resolveSize resolves the "size" field: a literal fraction, or a
// "parameters.<name>" reference resolved against the already-parsed
// parameters map. A dangling reference is a load-time error, not a
// per-candle one.
func resolveSize(node *yaml.Node, params map[string]any) (decimal.Decimal, error) {
	if node == nil || node.Kind == 0 {
		return decimal.NewFromFloat(0.01), nil
	}
	if node.Tag == "!!str" {
		ref := node.Value
		if strings.HasPrefix(ref, "parameters.") {
			name := strings.TrimPrefix(ref, "parameters.")
			val, ok := params[name]
			if !ok {
				return decimal.Zero, types.NewError(types.ErrConfiguration,
					fmt.Sprintf("unknown parameter reference %q", ref), nil)
			}
			return decimalFromAny(val, ref)
		}
		f, err := strconv.ParseFloat(ref, 64)
		if err != nil {
			return decimal.Zero, types.NewError(types.ErrConfiguration, "size must be numeric or a parameters.<name> reference", err)
		}
		return decimal.NewFromFloat(f), nil
	}
	f, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return decimal.Zero, types.NewError(types.ErrConfiguration, "size must be numeric", err)
	}
	return decimal.NewFromFloat(f), nil
}

func decimalFromAny(v any, context string) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return decimal.Zero, types.NewError(types.ErrConfiguration, context+" is not numeric", err)
		}
		return decimal.NewFromFloat(f), nil
	default:
		return decimal.Zero, types.NewError(types.ErrConfiguration, context+" is not numeric", nil)
	}
}

func decimalFromNode(node *yaml.Node, context string) (decimal.Decimal, error) {
	f, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return decimal.Zero, types.NewError(types.ErrConfiguration, context+" must be numeric", err)
	}
	return decimal.NewFromFloat(f), nil
}

// fieldNode looks up a key in a YAML mapping node, returning nil if absent.
func fieldNode(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func rejectUnknownKeys(node *yaml.Node, allowed map[string]bool, context string) error {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if !allowed[key] {
			return types.NewError(types.ErrConfiguration,
				fmt.Sprintf("unknown key %q under %s", key, context), nil)
		}
	}
	return nil
}
