/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"github.com/gin-gonic/gin"
)

// Render writes the given object to the response with the given status code
func Render(obj interface{}, status int, c *gin.Context) {
	c.Header("content-type", "application/json; charset=UTF-8")
	if obj != nil {
		c.JSON(status, obj)
	} else {
		c.Status(status)
	}
}

// RenderError writes an error message to the response with the given status code
func RenderError(message string, status int, c *gin.Context) {
	c.Header("content-type", "application/json; charset=UTF-8")
	c.JSON(status, map[string]interface{}{
		"message": message,
	})
}

// RenderStatusForError maps the error taxonomy to a response status: state
// conflicts render 409, validation failures 422 and configuration or
// infrastructure failures 500
func RenderStatusForError(err error) int {
	switch err.(type) {
	case *ValidationError:
		return 422
	case *ConflictError:
		return 409
	case *ConfigurationError:
		return 500
	default:
		return 500
	}
}
