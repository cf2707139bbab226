// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package security provides path-safety primitives used when the workflow
// engine writes files generated by a persona back into a repository working
// tree.
package security

// AccessAction represents the action being performed on a resource.
type AccessAction string

const (
	// ActionRead represents read access.
	ActionRead AccessAction = "read"

	// ActionWrite represents write access.
	ActionWrite AccessAction = "write"
)
