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

package rag

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs the model to stay within the retrieved context.
const SystemPrompt = "Answer the question using only the provided context."

// UserPrompt assembles the context bullets and the question into one message.
func UserPrompt(question string, contexts []string) string {
	bullets := make([]string, len(contexts))
	for i, c := range contexts {
		bullets[i] = "- " + c
	}

	return fmt.Sprintf("Use the following context to answer the question.\n"+
		"Context:\n%s\n\n"+
		"Question: %s\n"+
		"Answer concisely based on the context provided.",
		strings.Join(bullets, "\n\n"), question)
}
