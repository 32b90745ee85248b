package agentloop

import (
	"crypto/sha256"
	"fmt"

	"github.com/martinemde/stepagent/unifiedllm"
	"github.com/tidwall/gjson"
)

// actionSignature computes a deterministic signature for an action step
// (function name + hash of its input JSON).
func actionSignature(function string, input string) string {
	h := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%s:%x", function, h[:8])
}

// extractActionSignatures returns the signatures of the most recent action
// steps of the current turn, oldest first. The turn starts at the last user
// message.
func extractActionSignatures(messages []Message, count int) []string {
	var sigs []string
	for i := len(messages) - 1; i >= 0 && len(sigs) < count; i-- {
		msg := messages[i]
		if msg.Role == unifiedllm.RoleUser {
			break
		}
		if msg.Role != unifiedllm.RoleAssistant || !gjson.Valid(msg.Content) {
			continue
		}
		parsed := gjson.Parse(msg.Content)
		if parsed.Get("step").String() != string(StepAction) {
			continue
		}
		sigs = append(sigs, actionSignature(parsed.Get("function").String(), parsed.Get("input").Raw))
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop checks if the last windowSize actions of the current turn follow
// a repeating pattern of length 1, 2 or 3.
func DetectLoop(messages []Message, windowSize int) bool {
	if windowSize <= 1 {
		return false
	}
	sigs := extractActionSignatures(messages, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || patternLen == windowSize {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
