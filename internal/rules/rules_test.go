package rules

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func leaf(field string, p Predicate, value, message string) Rule {
	return Rule{Leaf: &Leaf{Field: field, Type: p, Value: value, Message: message}}
}

func group(cond Condition, children ...Rule) Rule {
	return Rule{Group: &Group{Condition: cond, Rules: children}}
}

func TestEvaluate_AbsentRulesetPasses(t *testing.T) {
	result := Evaluate(Rule{}, map[string]any{})
	if !result.Passed {
		t.Fatalf("expected empty rule to pass")
	}
	if len(result.Messages) != 0 {
		t.Fatalf("expected no messages, got %v", result.Messages)
	}
}

func TestEvaluate_NotEmpty(t *testing.T) {
	rule := leaf("q1", PredicateNotEmpty, "", "Qualifying Question 1 is missing.")

	cases := []struct {
		name   string
		fields map[string]any
		want   bool
	}{
		{"present string", map[string]any{"q1": "answered"}, true},
		{"missing field", map[string]any{}, false},
		{"nil value", map[string]any{"q1": nil}, false},
		{"empty string", map[string]any{"q1": ""}, false},
		{"whitespace only", map[string]any{"q1": "  "}, false},
		{"zero is a value", map[string]any{"q1": float64(0)}, true},
		{"reference object with id", map[string]any{"q1": map[string]any{"id": float64(5)}}, true},
		{"reference object with nil id", map[string]any{"q1": map[string]any{"id": nil}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Evaluate(rule, tc.fields)
			if result.Passed != tc.want {
				t.Fatalf("passed = %v, want %v", result.Passed, tc.want)
			}
		})
	}
}

func TestEvaluate_EqualsID(t *testing.T) {
	rule := leaf("budget", PredicateEqualsID, "88", "Budget must be confirmed as 'Yes'.")

	if r := Evaluate(rule, map[string]any{"budget": float64(88)}); !r.Passed {
		t.Fatalf("numeric id should match")
	}
	if r := Evaluate(rule, map[string]any{"budget": "88"}); !r.Passed {
		t.Fatalf("numeric string id should match")
	}
	if r := Evaluate(rule, map[string]any{"budget": map[string]any{"id": float64(88)}}); !r.Passed {
		t.Fatalf("reference object id should match")
	}
	if r := Evaluate(rule, map[string]any{"budget": float64(87)}); r.Passed {
		t.Fatalf("mismatched id should fail")
	}
	if r := Evaluate(rule, map[string]any{}); r.Passed {
		t.Fatalf("absent field should fail")
	}
}

func TestEvaluate_Equals(t *testing.T) {
	rule := leaf("status_flag", PredicateEquals, "approved", "Flag must be approved.")

	if r := Evaluate(rule, map[string]any{"status_flag": "approved"}); !r.Passed {
		t.Fatalf("matching string should pass")
	}
	if r := Evaluate(rule, map[string]any{"status_flag": "pending"}); r.Passed {
		t.Fatalf("non-matching string should fail")
	}

	numeric := leaf("option", PredicateEquals, "90", "Option must be 90.")
	if r := Evaluate(numeric, map[string]any{"option": float64(90)}); !r.Passed {
		t.Fatalf("whole float should compare as its integer string form")
	}
}

func TestEvaluate_AndCollectsAllFailureMessages(t *testing.T) {
	rule := group(ConditionAnd,
		leaf("q1", PredicateNotEmpty, "", "Qualifying Question 1 is missing."),
		leaf("q2", PredicateNotEmpty, "", "Qualifying Question 2 is missing."),
		leaf("q3", PredicateNotEmpty, "", "Qualifying Question 3 is missing."),
	)

	result := Evaluate(rule, map[string]any{"q1": "yes"})
	if result.Passed {
		t.Fatalf("expected AND to fail with two missing fields")
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %v", result.Messages)
	}
	if result.Messages[0] != "Qualifying Question 2 is missing." {
		t.Fatalf("messages must keep declaration order, got %v", result.Messages)
	}
	if result.Messages[1] != "Qualifying Question 3 is missing." {
		t.Fatalf("messages must keep declaration order, got %v", result.Messages)
	}
}

func TestEvaluate_AndPassesOnlyWhenAllChildrenPass(t *testing.T) {
	rule := group(ConditionAnd,
		leaf("a", PredicateNotEmpty, "", "a missing"),
		leaf("b", PredicateNotEmpty, "", "b missing"),
	)

	if r := Evaluate(rule, map[string]any{"a": "x", "b": "y"}); !r.Passed {
		t.Fatalf("AND with all children passing must pass")
	}
}

func TestEvaluate_OrRequiresAtLeastOne(t *testing.T) {
	rule := group(ConditionOr,
		leaf("payment_taken", PredicateEqualsID, "90", "Payment must be taken."),
		leaf("final_meeting", PredicateNotEmpty, "", "Final Decision Meeting must be booked."),
	)

	if r := Evaluate(rule, map[string]any{"final_meeting": "2024-02-01"}); !r.Passed {
		t.Fatalf("OR with one passing child must pass")
	}

	result := Evaluate(rule, map[string]any{})
	if result.Passed {
		t.Fatalf("OR with no passing children must fail")
	}
	if len(result.Messages) != 2 {
		t.Fatalf("failing OR reports all child messages, got %v", result.Messages)
	}
}

func TestEvaluate_NestedGroups(t *testing.T) {
	rule := group(ConditionAnd,
		leaf("proposal_date", PredicateNotEmpty, "", "Proposal Presentation Date must be set."),
		group(ConditionOr,
			leaf("payment_taken", PredicateEqualsID, "90", "Payment must be taken."),
			leaf("final_meeting", PredicateNotEmpty, "", "Final Decision Meeting must be booked."),
		),
	)

	fields := map[string]any{
		"proposal_date": "2024-02-01",
		"payment_taken": map[string]any{"id": float64(90)},
	}
	if r := Evaluate(rule, fields); !r.Passed {
		t.Fatalf("nested OR satisfied, expected pass")
	}

	result := Evaluate(rule, map[string]any{"proposal_date": "2024-02-01"})
	if result.Passed {
		t.Fatalf("inner OR unsatisfied, expected fail")
	}
	if len(result.Messages) != 2 {
		t.Fatalf("expected both OR messages, got %v", result.Messages)
	}
}

func TestRule_UnmarshalYAML(t *testing.T) {
	doc := `
condition: AND
rules:
  - field: budget
    type: equals_id
    value: "88"
    message: Budget must be confirmed as 'Yes'.
  - condition: OR
    rules:
      - field: payment_taken
        type: equals_id
        value: "90"
        message: Payment must be taken.
      - field: final_meeting
        type: not_empty
        message: Final Decision Meeting must be booked.
`
	var rule Rule
	if err := yaml.Unmarshal([]byte(doc), &rule); err != nil {
		t.Fatalf("unmarshal rule tree: %v", err)
	}
	if rule.Group == nil || rule.Group.Condition != ConditionAnd {
		t.Fatalf("expected top-level AND group")
	}
	if len(rule.Group.Rules) != 2 {
		t.Fatalf("expected 2 children, got %d", len(rule.Group.Rules))
	}
	if rule.Group.Rules[0].Leaf == nil || rule.Group.Rules[0].Leaf.Field != "budget" {
		t.Fatalf("expected first child to be the budget leaf")
	}
	nested := rule.Group.Rules[1]
	if nested.Group == nil || nested.Group.Condition != ConditionOr || len(nested.Group.Rules) != 2 {
		t.Fatalf("expected nested OR group with 2 leaves")
	}
}

func TestRule_UnmarshalYAML_RejectsUnknownPredicate(t *testing.T) {
	doc := `
field: budget
type: greater_than
value: "88"
message: nope
`
	var rule Rule
	if err := yaml.Unmarshal([]byte(doc), &rule); err == nil {
		t.Fatalf("expected error for unknown predicate")
	}
}
