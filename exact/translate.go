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

package exact

// codonTable maps the 2-bit encoding of a codon (first base in the high
// bits, A=0 C=1 G=2 T=3) to its amino acid. '*' is a stop codon.
const codonTable = "KNKNTTTTRSRSIIMI" +
	"QHQHPPPPRRRRLLLL" +
	"EDEDAAAAGGGGVVVV" +
	"*Y*YSSSS*CWCLFLF"

var baseCode [256]int8

func init() {
	for i := range baseCode {
		baseCode[i] = -1
	}
	for i, b := range []byte("ACGT") {
		baseCode[b] = int8(i)
		baseCode[b+'a'-'A'] = int8(i)
	}
}

// Translate translates a nucleotide sequence in frame 0. Trailing bases that
// do not fill a codon are ignored; codons with non-ACGT bases become 'X'.
func Translate(seq string) string {
	aa := make([]byte, 0, len(seq)/3)
	for i := 0; i+3 <= len(seq); i += 3 {
		b0, b1, b2 := baseCode[seq[i]], baseCode[seq[i+1]], baseCode[seq[i+2]]
		if b0 < 0 || b1 < 0 || b2 < 0 {
			aa = append(aa, 'X')
			continue
		}
		aa = append(aa, codonTable[int(b0)<<4|int(b1)<<2|int(b2)])
	}
	return string(aa)
}
