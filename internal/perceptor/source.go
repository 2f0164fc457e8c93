// Package perceptor implements the publish side of the stream perceiver:
// it owns no vision or ASR logic, only the contract of turning captured
// frames and transcript segments into StreamObservation records on the
// bus. Grounded on the teacher's internal/channels poll-and-publish shape
// (a channel polls an external source on an interval and republishes onto
// the message bus), generalized from chat channels to a video/audio source.
package perceptor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

// FrameSource yields the next captured video frame, or ok=false when none
// is currently available. Real implementations wrap a capture pipeline;
// the vision analysis that would normally produce these is out of scope
// here — only the contract of handing the perceptor an opaque frame is.
type FrameSource interface {
	NextFrame() (frame chatmodel.StreamFrame, ok bool, err error)
}

// TranscriptSource yields the next ASR transcript segment, or ok=false
// when none is currently available.
type TranscriptSource interface {
	NextTranscript() (seg chatmodel.StreamTranscriptSegment, ok bool, err error)
}

// FixtureSource reads StreamFrame and StreamTranscriptSegment records from
// JSON files in a directory (one record per file, sorted by filename) and
// serves them once each in order. It exists so the perceiver's publish
// contract can be exercised and tested without a real capture pipeline.
type FixtureSource struct {
	frames       []chatmodel.StreamFrame
	transcripts  []chatmodel.StreamTranscriptSegment
	frameIdx     int
	transcriptIdx int
}

// NewFixtureSource loads fixtures from dir. Frame fixtures must be named
// "frame-*.json", transcript fixtures "transcript-*.json"; any other file
// is ignored. A missing directory yields an empty, always-idle source.
func NewFixtureSource(dir string) (*FixtureSource, error) {
	s := &FixtureSource{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		switch {
		case matchPrefix(name, "frame-"):
			var f chatmodel.StreamFrame
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, err
			}
			s.frames = append(s.frames, f)
		case matchPrefix(name, "transcript-"):
			var t chatmodel.StreamTranscriptSegment
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, err
			}
			s.transcripts = append(s.transcripts, t)
		}
	}
	return s, nil
}

func matchPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func (s *FixtureSource) NextFrame() (chatmodel.StreamFrame, bool, error) {
	if s.frameIdx >= len(s.frames) {
		return chatmodel.StreamFrame{}, false, nil
	}
	f := s.frames[s.frameIdx]
	s.frameIdx++
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return f, true, nil
}

func (s *FixtureSource) NextTranscript() (chatmodel.StreamTranscriptSegment, bool, error) {
	if s.transcriptIdx >= len(s.transcripts) {
		return chatmodel.StreamTranscriptSegment{}, false, nil
	}
	t := s.transcripts[s.transcriptIdx]
	s.transcriptIdx++
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return t, true, nil
}
