// Copyright 2025 Poiesic Systems
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

package core

import (
	"encoding/hex"
	"fmt"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// PointID derives the identifier of the chunk at index within sourceID.
// It is the version 5 UUID of "<sourceID>:<index>" in the URL namespace, so
// re-ingesting a source overwrites its previous points.
func PointID(sourceID string, index int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s:%d", sourceID, index)))
}

// Fingerprint returns a hex BLAKE2b-256 digest of document content.
func Fingerprint(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// NewRunID returns a random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewEventID returns a random event identifier.
func NewEventID() string {
	return uuid.NewString()
}
