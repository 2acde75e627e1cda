// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2020 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ap

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/outpostfed/apcore/util"
)

// sanitizedFields are the object properties allowed to carry attacker
// controlled HTML; every other property is passed through untouched.
var sanitizedFields = []string{"content", "summary", "name"}

var htmlPolicy = bluemonday.UGCPolicy()

// SanitizeObject runs every HTML-bearing property of an object through the
// UGC HTML sanitization policy in place, used by the Create and Update
// handlers before an object ever reaches the store.
func SanitizeObject(obj util.Activity) {
	for _, field := range sanitizedFields {
		v, ok := obj[field]
		if !ok {
			continue
		}
		list, ok := v.([]interface{})
		if !ok {
			continue
		}
		for i, e := range list {
			s, ok := e.(string)
			if !ok {
				continue
			}
			list[i] = htmlPolicy.Sanitize(s)
		}
		obj[field] = list
	}
}
