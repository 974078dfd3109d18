// Package rules implements the compliance rule evaluator: a pure,
// side-effect-free check of a deal's field snapshot against the boolean
// rule tree configured for a pipeline stage.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Predicate is the comparison a leaf rule applies to one deal field.
type Predicate string

const (
	// PredicateNotEmpty passes when the field resolves to a non-null,
	// non-empty value.
	PredicateNotEmpty Predicate = "not_empty"
	// PredicateEquals passes when the resolved value's string form equals
	// the expected string.
	PredicateEquals Predicate = "equals"
	// PredicateEqualsID passes when the resolved value's identifier equals
	// the expected integer id. Used for CRM option fields whose values are
	// option ids.
	PredicateEqualsID Predicate = "equals_id"
)

// Condition combines the results of a group's child rules.
type Condition string

const (
	ConditionAnd Condition = "AND"
	ConditionOr  Condition = "OR"
)

// Leaf is a single field predicate.
type Leaf struct {
	Field   string    `yaml:"field"`
	Type    Predicate `yaml:"type"`
	Value   string    `yaml:"value"`
	Message string    `yaml:"message"`
}

// Group combines child rules with AND or OR. Children may themselves be
// groups; nesting depth is unrestricted.
type Group struct {
	Condition Condition
	Rules     []Rule
}

// Rule is the tagged variant over Leaf and Group. Exactly one of the two
// is set; the zero Rule (neither set) represents an absent ruleset and
// evaluates as passing.
type Rule struct {
	Leaf  *Leaf
	Group *Group
}

// IsZero reports whether the rule is empty (no leaf and no group).
func (r Rule) IsZero() bool {
	return r.Leaf == nil && r.Group == nil
}

// UnmarshalYAML decodes a rule node. A mapping with a `condition` key is a
// group; anything else is a leaf.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	var probe struct {
		Condition Condition `yaml:"condition"`
	}
	if err := node.Decode(&probe); err != nil {
		return err
	}

	if probe.Condition != "" {
		var group struct {
			Condition Condition `yaml:"condition"`
			Rules     []Rule    `yaml:"rules"`
		}
		if err := node.Decode(&group); err != nil {
			return err
		}
		if group.Condition != ConditionAnd && group.Condition != ConditionOr {
			return fmt.Errorf("rules: unknown condition %q", group.Condition)
		}
		r.Group = &Group{Condition: group.Condition, Rules: group.Rules}
		return nil
	}

	var leaf Leaf
	if err := node.Decode(&leaf); err != nil {
		return err
	}
	switch leaf.Type {
	case PredicateNotEmpty, PredicateEquals, PredicateEqualsID:
	default:
		return fmt.Errorf("rules: unknown predicate %q for field %q", leaf.Type, leaf.Field)
	}
	r.Leaf = &leaf
	return nil
}

// Result is the outcome of evaluating a rule tree.
type Result struct {
	Passed bool
	// Messages holds the failure messages of every failed leaf, in
	// declaration order. Empty when Passed.
	Messages []string
}

// Evaluate checks the deal's field snapshot against the rule tree. It is
// deterministic and total: missing fields resolve to absent rather than
// erroring, and an empty rule passes vacuously with no messages.
func Evaluate(rule Rule, fields map[string]any) Result {
	if rule.IsZero() {
		return Result{Passed: true}
	}

	passed, messages := evaluate(rule, fields)
	if passed {
		return Result{Passed: true}
	}
	return Result{Passed: false, Messages: messages}
}

func evaluate(rule Rule, fields map[string]any) (bool, []string) {
	if rule.Leaf != nil {
		if evaluateLeaf(*rule.Leaf, fields) {
			return true, nil
		}
		return false, []string{rule.Leaf.Message}
	}

	if rule.Group == nil {
		return true, nil
	}

	var (
		passedCount int
		messages    []string
	)
	for _, child := range rule.Group.Rules {
		childPassed, childMessages := evaluate(child, fields)
		if childPassed {
			passedCount++
			continue
		}
		messages = append(messages, childMessages...)
	}

	switch rule.Group.Condition {
	case ConditionOr:
		if passedCount > 0 {
			return true, nil
		}
	default: // AND
		if passedCount == len(rule.Group.Rules) {
			return true, nil
		}
	}
	return false, messages
}

func evaluateLeaf(leaf Leaf, fields map[string]any) bool {
	value := resolve(fields[leaf.Field])

	switch leaf.Type {
	case PredicateNotEmpty:
		return !isEmpty(value)
	case PredicateEquals:
		if isEmpty(value) {
			return false
		}
		return stringForm(value) == leaf.Value
	case PredicateEqualsID:
		id, ok := resolveID(value)
		if !ok {
			return false
		}
		expected, err := strconv.Atoi(strings.TrimSpace(leaf.Value))
		if err != nil {
			return false
		}
		return id == expected
	}
	return false
}

// resolve unwraps CRM reference objects: when a field holds an object with
// an `id` key, that id is the value compared.
func resolve(v any) any {
	if m, ok := v.(map[string]any); ok {
		if id, exists := m["id"]; exists {
			return id
		}
	}
	return v
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func stringForm(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; render whole numbers without a
		// fractional part so option ids compare cleanly.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func resolveID(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
