// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type mapEnv map[string]Value

func (m mapEnv) Lookup(name string) (Value, bool) {
	v, ok := m[name]
	return v, ok
}

func TestExprEval(t *testing.T) {
	env := mapEnv{
		"ncells":       Num(12),
		"cdr3_aa":      Str("CARDYW"),
		"feature.CD19": Num(3.5),
	}
	tests := []struct {
		expr string
		want bool
	}{
		{"ncells > 10", true},
		{"ncells >= 12 && ncells <= 12", true},
		{"ncells * 2 - 4 == 20", true},
		{"-ncells < 0", true},
		{"ncells / 4 != 3", false},
		{"!(ncells > 10) || cdr3_aa == \"CARDYW\"", true},
		{"cdr3_aa < \"CB\"", true},
		{"cdr3_aa + \"F\" == \"CARDYWF\"", true},
		{"feature.CD19 > 3.25", true},
		{"true && !false", true},
		// The right operand is not evaluated.
		{"ncells < 5 && missing > 1", false},
		{"ncells > 5 || missing > 1", true},
	}
	for _, test := range tests {
		e, err := ParseExpr(test.expr)
		if !assert.NoError(t, err, test.expr) {
			continue
		}
		got, err := e.Eval(env)
		assert.NoError(t, err, test.expr)
		assert.Equal(t, test.want, got, test.expr)
	}
}

func TestExprEvalErrors(t *testing.T) {
	env := mapEnv{"ncells": Num(12), "cdr3_aa": Str("CARDYW")}
	tests := []struct {
		expr    string
		missing bool
	}{
		{"feature.CD3 > 1", true},
		{"missing == 1", true},
		{"ncells / 0 > 1", false},
		{"ncells == \"12\"", false},
		{"ncells + 1", false},
		{"!ncells", false},
		{"cdr3_aa * 2 == \"x\"", false},
	}
	for _, test := range tests {
		e, err := ParseExpr(test.expr)
		if !assert.NoError(t, err, test.expr) {
			continue
		}
		_, err = e.Eval(env)
		assert.Error(t, err, test.expr)
		assert.Equal(t, test.missing, IsMissing(err), test.expr)
	}
}

func TestParseExprErrors(t *testing.T) {
	for _, src := range []string{"", "ncells >", "f(ncells)", "a[1] > 2", "'c' == cdr3_aa", "x := 1", "a.b.c > 1", "ncells % 2 == 0"} {
		_, err := ParseExpr(src)
		assert.Error(t, err, src)
	}
}

func TestEvaluateRecovers(t *testing.T) {
	ds := evaluate("TEST", func(int) []Decision { panic("boom") }, 3)
	assert.Nil(t, ds)
}
