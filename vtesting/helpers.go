/*
   Fleetstore - Hunting Evil
   Copyright (C) 2019 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
/* An internal package with test utilities.
 */

package vtesting

import (
	"os"
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func ReadFile(t *testing.T, filename string) []byte {
	t.Helper()

	result, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed reading %v: %v", filename, err)
	}
	return result
}

// Does any of the watched lines contain the expected substring?
func ContainsString(expected string, watched []string) bool {
	for _, line := range watched {
		if strings.Contains(line, expected) {
			return true
		}
	}
	return false
}

// WaitUntil polls the condition until it holds or the deadline
// expires. Background services have no completion signal so tests
// wait for their observable effects.
func WaitUntil(deadline time.Duration, t *testing.T, cb func() bool) {
	t.Helper()

	expired := time.Now().Add(deadline)
	for {
		if cb() {
			return
		}

		if time.Now().After(expired) {
			t.Fatalf("Timed out %v", string(debug.Stack()))
		}

		time.Sleep(50 * time.Millisecond)
	}
}
