// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package encoding

import (
	"bufio"
	"encoding/gob"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// WriteGob encodes v as a single gob value.
func WriteGob(w io.Writer, v any) error {
	return errors.Trace(gob.NewEncoder(w).Encode(v))
}

// ReadGob decodes a single gob value. Bytes after the value are rejected.
func ReadGob(r io.Reader, v any) error {
	reader := bufio.NewReader(r)
	if err := gob.NewDecoder(reader).Decode(v); err != nil {
		return errors.Trace(err)
	}
	if _, err := reader.Peek(1); err != io.EOF {
		return errors.NotValidf("trailing data after gob value")
	}
	return nil
}

// FormatFloat32 formats val with the fewest digits that read back to the same float32.
func FormatFloat32(val float32) string {
	return strconv.FormatFloat(float64(val), 'f', -1, 32)
}

// ParseFloat32 parses a float32, ignoring surrounding spaces.
func ParseFloat32(s string) (float32, error) {
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return float32(val), nil
}
