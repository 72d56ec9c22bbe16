/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// overrideSchema validates explicit ParsedCommand JSON supplied by callers
// that bypass the free-text parser. Parsed output never goes through this;
// only externally supplied intent does.
const overrideSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["action"],
  "properties": {
    "action": {"type": "string", "enum": ["generate", "overlay"]},
    "prompt": {"type": "string"},
    "baseImageUrl": {"type": "string"},
    "useParentImage": {"type": "boolean"},
    "overlayMode": {"type": "string"},
    "controls": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "scale": {"type": "number"},
        "x": {"type": "integer"},
        "y": {"type": "integer"},
        "overlayColor": {"type": "string"},
        "overlayAlpha": {"type": "number"}
      }
    },
    "text": {
      "type": "object",
      "additionalProperties": false,
      "required": ["content"],
      "properties": {
        "content": {"type": "string"},
        "position": {"type": "string"},
        "fontSize": {"type": "integer", "minimum": 1},
        "fontFamily": {"type": "string"},
        "fontStyle": {"type": "string"},
        "color": {"type": "string"},
        "strokeColor": {"type": "string"},
        "strokeWidth": {"type": "integer", "minimum": 0},
        "backgroundColor": {"type": "string"},
        "rotationDegrees": {"type": "number"}
      }
    }
  }
}`

var compiledSchema = gojsonschema.NewStringLoader(overrideSchema)

// DecodeOverride validates raw JSON against the override schema and decodes
// it into a ParsedCommand. Controls are clamped; the text position is
// normalized onto the grid.
func DecodeOverride(raw []byte) (ParsedCommand, error) {
	res, err := gojsonschema.Validate(compiledSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return ParsedCommand{}, fmt.Errorf("validate override: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return ParsedCommand{}, fmt.Errorf("invalid command override: %s", strings.Join(msgs, "; "))
	}
	var cmd ParsedCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return ParsedCommand{}, fmt.Errorf("decode override: %w", err)
	}
	if cmd.Controls != nil {
		c := cmd.Controls.Clamped()
		cmd.Controls = &c
	}
	if cmd.Text != nil && cmd.Text.Position != "" {
		cmd.Text.Position = normalizePosition(cmd.Text.Position)
	}
	return cmd, nil
}
