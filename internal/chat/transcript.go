package chat

import "slices"

// BuildTranscript maps platform history (newest first) to a chronological
// transcript from the point of view of selfDID.
func BuildTranscript(messages []Message, selfDID string) []TranscriptEntry {
	entries := make([]TranscriptEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, transcriptEntry(msg, selfDID))
	}
	slices.Reverse(entries)
	return entries
}

func transcriptEntry(msg Message, selfDID string) TranscriptEntry {
	switch m := msg.(type) {
	case ContentMessage:
		role := RoleUser
		if m.SenderDID == selfDID {
			role = RoleAssistant
		}
		return TranscriptEntry{Role: role, Content: m.Text}
	case DeletedMessage:
		return TranscriptEntry{Role: RoleUser, Content: DeletedMessagePlaceholder}
	case UnknownMessage:
		return TranscriptEntry{Role: RoleSystem, Content: UnknownMessagePlaceholder}
	default:
		// nil or a variant added without updating this switch
		return TranscriptEntry{Role: RoleSystem, Content: UnknownMessagePlaceholder}
	}
}

// NeedsReply reports whether msg is a content message from someone other than self.
func NeedsReply(msg Message, selfDID string) bool {
	m, ok := msg.(ContentMessage)
	return ok && m.SenderDID != selfDID
}
