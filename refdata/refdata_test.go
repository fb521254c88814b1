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

package refdata_test

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/vdj/refdata"
)

const refData = `>1|IGHV1 ENST1|IGHV1|L-REGION+V-REGION|IG|IGH|None|00
ACGTAC
gtac
>2|IGHJ1 ENST2|IGHJ1|J-REGION|IG|IGH|None|00
TTTGGG
>3|IGHM ENST3|IGHM|C-REGION|IG|IGH|IGHM|00
CCCCCC
>7|IGKV2 ENST4|IGKV2|L-REGION+V-REGION|IG|IGK|None|00
AAAA
`

func TestReadFASTA(t *testing.T) {
	ref, err := refdata.ReadFASTA(strings.NewReader(refData))
	assert.NoError(t, err)
	expect.EQ(t, ref.IDs(), []int{1, 2, 3, 7})

	s, ok := ref.Segment(1)
	expect.True(t, ok)
	expect.EQ(t, s.Name, "IGHV1")
	expect.EQ(t, s.Region, refdata.V)
	expect.EQ(t, s.Chain, "IGH")
	expect.EQ(t, s.Seq, "ACGTACGTAC")

	s, ok = ref.Segment(3)
	expect.True(t, ok)
	expect.EQ(t, s.Region, refdata.C)

	_, ok = ref.Segment(4)
	expect.False(t, ok)
}

func TestReadFASTAErrors(t *testing.T) {
	for _, data := range []string{
		"",
		"ACGT\n>1|a|a|V-REGION|IG|IGH\nACGT\n",
		">x|a|a|V-REGION|IG|IGH\nACGT\n",
		">1|a|a|X-REGION|IG|IGH\nACGT\n",
		">1|a|a|V-REGION\nACGT\n",
		">1|a|a|V-REGION|IG|IGH\nACGT\n>1|b|b|J-REGION|IG|IGH\nAC\n",
		">1|a|a|V-REGION|IG|IGH\n>2|b|b|J-REGION|IG|IGH\nAC\n",
	} {
		_, err := refdata.ReadFASTA(strings.NewReader(data))
		expect.NotNil(t, err, "data: %q", data)
	}
}
