// Copyright 2021 gorse Project Authors
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

package base

import (
	"bufio"
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// ParseID parses a user or item id. Ids are non-negative integers.
func ParseID(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errors.NotValidf("empty id")
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, errors.NotValidf("id %q", text)
	}
	if id < 0 {
		return 0, errors.NotValidf("negative id %d", id)
	}
	return id, nil
}

// ParseRating parses a rating value. NaN and infinite ratings are rejected.
func ParseRating(text string) (float32, error) {
	text = strings.TrimSpace(text)
	value, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return 0, errors.NotValidf("rating %q", text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errors.NotValidf("rating %q", text)
	}
	return float32(value), nil
}

// ReadLines parse fields of each line for csv file.
func ReadLines(sc *bufio.Scanner, sep string, handler func(int, []string) bool) error {
	lineCount := 0               // line number of current position
	fields := make([]string, 0)  // fields for current line
	builder := strings.Builder{} // string builder for current field
	quoted := false              // whether current position in quote
	for sc.Scan() {
		// read line
		lineStr := sc.Text()
		line := []rune(lineStr)
		// start of line
		if quoted {
			builder.WriteString("\r\n")
		}
		// parse line
		for i := 0; i < len(line); i++ {
			if string(line[i]) == sep && !quoted {
				// end of field
				fields = append(fields, builder.String())
				builder.Reset()
			} else if line[i] == '"' {
				if quoted {
					if i+1 >= len(line) || line[i+1] != '"' {
						// end of quoted
						quoted = false
					} else {
						i++
						builder.WriteRune('"')
					}
				} else {
					// start of quoted
					quoted = true
				}
			} else {
				builder.WriteRune(line[i])
			}
		}
		// end of line
		if !quoted {
			fields = append(fields, builder.String())
			builder.Reset()
			if !handler(lineCount, fields) {
				return nil
			}
			fields = []string{}
		}
		// increase line count
		lineCount++
	}
	return errors.Trace(sc.Err())
}
