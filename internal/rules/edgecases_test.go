// internal/rules/edgecases_test.go
package rules

import (
	"reflect"
	"testing"

	"github.com/solatis/formflow/internal/types"
)

func edgeCaseRules() []types.Rule {
	return []types.Rule{
		{
			ID: "adult", Enabled: true,
			Conditions: []types.Condition{
				{Field: "age", Operator: types.OpGreaterThan, Value: 18.0},
				{Field: "name", Operator: types.OpEquals, Value: "bob"},
			},
		},
		{
			ID: "working-age", Enabled: true,
			Conditions: []types.Condition{
				{Field: "age", Operator: types.OpLessThan, Value: 65.0},
				{Field: "tags", Operator: types.OpContains, Value: "vip"},
			},
		},
	}
}

func casesByName(cases []EdgeCase) map[string]types.Values {
	out := map[string]types.Values{}
	for _, c := range cases {
		out[c.Name] = c.Values
	}
	return out
}

func TestGenerateEdgeCases(t *testing.T) {
	cases := GenerateEdgeCases(edgeCaseRules())

	var names []string
	for _, c := range cases {
		names = append(names, c.Name)
	}
	wantNames := []string{CaseAllEmpty, CaseHappyPath, CaseInverted, CaseBoundary, CaseContradictory}
	if !reflect.DeepEqual(names, wantNames) {
		t.Fatalf("case names = %v, want %v", names, wantNames)
	}

	byName := casesByName(cases)
	tests := []struct {
		name string
		want types.Values
	}{
		{CaseAllEmpty, types.Values{"age": "", "name": "", "tags": ""}},
		{CaseHappyPath, types.Values{"age": 64.0, "name": "bob", "tags": "vip"}},
		{CaseInverted, types.Values{"age": 66.0, "name": "bob_invalid", "tags": ""}},
		{CaseBoundary, types.Values{"age": 65.0}},
		{CaseContradictory, types.Values{"age": 19.0, "name": "bob", "tags": "vip"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := byName[tt.name]; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s values = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestGenerateEdgeCases_OperatorValues(t *testing.T) {
	rule := types.Rule{
		ID: "r",
		Conditions: []types.Condition{
			{Field: "a", Operator: types.OpNotEquals, Value: "x"},
			{Field: "b", Operator: types.OpNotContains, Value: "spam"},
			{Field: "c", Operator: types.OpIsEmpty},
			{Field: "d", Operator: types.OpIsNotEmpty},
		},
	}
	byName := casesByName(GenerateEdgeCases([]types.Rule{rule}))

	if _, ok := byName[CaseBoundary]; ok {
		t.Errorf("Boundary Values emitted without numeric operators")
	}
	if _, ok := byName[CaseContradictory]; ok {
		t.Errorf("Contradictory emitted for a single rule")
	}

	wantHappy := types.Values{"a": "not_x", "b": "", "c": "", "d": "test"}
	if got := byName[CaseHappyPath]; !reflect.DeepEqual(got, wantHappy) {
		t.Errorf("Happy Path = %v, want %v", got, wantHappy)
	}
	wantInverted := types.Values{"a": "x", "b": "spam", "c": "filled", "d": ""}
	if got := byName[CaseInverted]; !reflect.DeepEqual(got, wantInverted) {
		t.Errorf("Inverted = %v, want %v", got, wantInverted)
	}
}

func TestGenerateEdgeCases_HappyPathSatisfiesRules(t *testing.T) {
	rules := edgeCaseRules()
	byName := casesByName(GenerateEdgeCases(rules))
	engine := NewEngine(WithMode(ModePlain))

	for _, r := range rules {
		ev := engine.EvaluateRule(r, byName[CaseHappyPath], nil)
		if !ev.ConditionsMet {
			t.Errorf("rule %s not met by Happy Path values %v", r.ID, byName[CaseHappyPath])
		}
		ev = engine.EvaluateRule(r, byName[CaseInverted], nil)
		if ev.ConditionsMet {
			t.Errorf("rule %s met by Inverted values %v", r.ID, byName[CaseInverted])
		}
	}
}

func TestGenerateEdgeCases_Deterministic(t *testing.T) {
	first := GenerateEdgeCases(edgeCaseRules())
	second := GenerateEdgeCases(edgeCaseRules())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("GenerateEdgeCases() not deterministic:\n%v\n%v", first, second)
	}
}

func TestGenerateEdgeCases_NoFields(t *testing.T) {
	if cases := GenerateEdgeCases([]types.Rule{{ID: "r"}}); len(cases) != 0 {
		t.Errorf("GenerateEdgeCases() = %v, want none", cases)
	}
}

func TestGenerateEdgeCases_ContradictoryOnlyLower(t *testing.T) {
	rules := []types.Rule{
		{ID: "a", Conditions: []types.Condition{{Field: "n", Operator: types.OpGreaterThan, Value: 10.0}}},
		{ID: "b", Conditions: []types.Condition{{Field: "n", Operator: types.OpGreaterThan, Value: 20.0}}},
		{ID: "c", Conditions: []types.Condition{{Field: "m", Operator: types.OpLessThan, Value: "5"}}},
		{ID: "d", Conditions: []types.Condition{{Field: "m", Operator: types.OpLessThan, Value: 3.0}}},
	}
	got := casesByName(GenerateEdgeCases(rules))[CaseContradictory]
	want := types.Values{"n": 21.0, "m": 2.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Contradictory = %v, want %v", got, want)
	}
}

func TestGenerateEdgeCases_ContradictoryBounds(t *testing.T) {
	tests := []struct {
		name         string
		lower, upper float64
		want         float64
	}{
		{"wide interval", 5, 10, 6},
		{"narrow interval", 5, 5.5, 5.25},
		{"empty interval", 10, 5, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []types.Rule{
				{ID: "a", Conditions: []types.Condition{{Field: "n", Operator: types.OpGreaterThan, Value: tt.lower}}},
				{ID: "b", Conditions: []types.Condition{{Field: "n", Operator: types.OpLessThan, Value: tt.upper}}},
			}
			got := casesByName(GenerateEdgeCases(rules))[CaseContradictory]
			if got["n"] != tt.want {
				t.Errorf("Contradictory n = %v, want %v", got["n"], tt.want)
			}
		})
	}
}
