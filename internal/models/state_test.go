package models

import (
	"testing"
	"time"
)

func TestValidStatusTransition(t *testing.T) {
	tests := []struct {
		from, to ConversationStatus
		want     bool
	}{
		{StatusActive, StatusActive, true},
		{StatusActive, StatusDisengaging, true},
		{StatusActive, StatusTerminated, true},
		{StatusDisengaging, StatusDisengaging, true},
		{StatusDisengaging, StatusTerminated, true},
		{StatusDisengaging, StatusActive, false},
		{StatusTerminated, StatusTerminated, true},
		{StatusTerminated, StatusActive, false},
		{StatusTerminated, StatusDisengaging, false},
		{"", "", false},
		{"", StatusActive, false},
	}
	for _, tc := range tests {
		if got := ValidStatusTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("ValidStatusTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestNewConversationState(t *testing.T) {
	now := time.Now()
	s := NewConversationState("conv_a", now)
	if s.Status != StatusActive {
		t.Errorf("status = %s, want ACTIVE", s.Status)
	}
	if s.TurnCount != 0 || s.LowRiskStreak != 0 || s.RiskScore != 0 {
		t.Errorf("counters not zero: %+v", s)
	}
	if !s.CreatedAt.Equal(now) || !s.LastActivityAt.Equal(now) {
		t.Errorf("timestamps not set to now")
	}
	if s.Intelligence == nil {
		t.Errorf("intelligence map not initialized")
	}
}

func TestAddArtifactDedup(t *testing.T) {
	s := NewConversationState("conv_a", time.Now())

	if !s.AddArtifact(ArtifactPhone, "5551234567") {
		t.Errorf("first add reported not new")
	}
	if s.AddArtifact(ArtifactPhone, "5551234567") {
		t.Errorf("duplicate add reported new")
	}
	if s.AddArtifact(ArtifactPhone, "") {
		t.Errorf("empty value reported new")
	}
	if !s.AddArtifact(ArtifactFinancialID, "5551234567") {
		t.Errorf("same value under another kind should be new")
	}
	if s.ArtifactCount() != 2 {
		t.Errorf("artifact count = %d, want 2", s.ArtifactCount())
	}

	// AddArtifact on a nil map must allocate.
	var bare ConversationState
	if !bare.AddArtifact(ArtifactEmail, "a@b.example") {
		t.Errorf("add on zero-value state reported not new")
	}
}

func TestCloneDeepCopies(t *testing.T) {
	s := NewConversationState("conv_a", time.Now())
	s.AddArtifact(ArtifactPhone, "5551234567")
	s.Transcript = append(s.Transcript, TranscriptEntry{Role: "scammer", Body: "hi"})

	c := s.Clone()
	c.AddArtifact(ArtifactPhone, "4155552671")
	c.Transcript[0].Body = "changed"
	c.Transcript = append(c.Transcript, TranscriptEntry{Role: "persona", Body: "hello"})

	if s.ArtifactCount() != 1 {
		t.Errorf("clone mutation leaked into original intelligence: count = %d", s.ArtifactCount())
	}
	if s.Transcript[0].Body != "hi" || len(s.Transcript) != 1 {
		t.Errorf("clone mutation leaked into original transcript: %+v", s.Transcript)
	}

	var nilState *ConversationState
	if nilState.Clone() != nil {
		t.Errorf("Clone of nil state should be nil")
	}
}

func TestRecentTranscript(t *testing.T) {
	s := NewConversationState("conv_a", time.Now())
	for i := 0; i < 5; i++ {
		s.Transcript = append(s.Transcript, TranscriptEntry{Role: "scammer", Body: string(rune('a' + i))})
	}

	if got := s.RecentTranscript(3); len(got) != 3 || got[0].Body != "c" {
		t.Errorf("RecentTranscript(3) = %+v, want last 3 entries", got)
	}
	if got := s.RecentTranscript(10); len(got) != 5 {
		t.Errorf("RecentTranscript(10) = %d entries, want all 5", len(got))
	}
	if got := s.RecentTranscript(0); len(got) != 5 {
		t.Errorf("RecentTranscript(0) = %d entries, want all 5", len(got))
	}
}

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"hello", "hello", true},
		{"  padded  ", "padded", true},
		{"", "", false},
		{"   \n\t ", "", false},
	}
	for _, tc := range tests {
		got, ok := NormalizeMessage(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("NormalizeMessage(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
