/*
Copyright 2025 The Edgeplane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package version

import (
	"testing"
)

func TestInConstraints(t *testing.T) {
	cases := map[string]struct {
		reason  string
		version string
		c       string
		want    bool
		wantErr bool
	}{
		"InRange": {
			reason:  "A version inside the constraint range satisfies it.",
			version: "v0.3.0",
			c:       ">0.2.0",
			want:    true,
		},
		"NotInRange": {
			reason:  "A version outside the constraint range does not satisfy it.",
			version: "v0.3.0",
			c:       ">0.3.0",
			want:    false,
		},
		"InvalidVersion": {
			reason:  "A build version that is not semantic is an error.",
			version: "not-semver",
			c:       ">0.1.0",
			wantErr: true,
		},
		"InvalidConstraint": {
			reason:  "A constraint that does not parse is an error.",
			version: "v0.3.0",
			c:       ">a2",
			wantErr: true,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := &Versioner{version: tc.version}
			got, err := v.InConstraints(tc.c)
			if tc.wantErr {
				if err == nil {
					t.Errorf("\n%s\nInConstraints(%q): want error, got nil", tc.reason, tc.c)
				}
				return
			}
			if err != nil {
				t.Fatalf("\n%s\nInConstraints(%q): unexpected error: %v", tc.reason, tc.c, err)
			}
			if got != tc.want {
				t.Errorf("\n%s\nInConstraints(%q): want %t, got %t", tc.reason, tc.c, tc.want, got)
			}
		})
	}
}
