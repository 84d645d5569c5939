package webcam

import (
	"bytes"
	"testing"
)

// fakeJPEG はマーカーだけを持つ疑似JPEGフレームを作る
func fakeJPEG(payload ...byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	frame = append(frame, 0xFF, 0xD9)
	return frame
}

func TestJPEGFrameSplitter_SingleFrame(t *testing.T) {
	splitter := newJPEGFrameSplitter()
	frame := fakeJPEG(0x01, 0x02, 0x03)

	frames := splitter.Feed(frame)
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("Frame mismatch: %x", frames[0])
	}
}

func TestJPEGFrameSplitter_MultipleFramesInOneFeed(t *testing.T) {
	splitter := newJPEGFrameSplitter()
	a := fakeJPEG(0x01)
	b := fakeJPEG(0x02)

	frames := splitter.Feed(append(append([]byte(nil), a...), b...))
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], a) || !bytes.Equal(frames[1], b) {
		t.Error("Frames were not split correctly")
	}
}

func TestJPEGFrameSplitter_PartialFrameAcrossFeeds(t *testing.T) {
	splitter := newJPEGFrameSplitter()
	frame := fakeJPEG(0x01, 0x02, 0x03, 0x04)

	// 途中で分割して供給する
	if frames := splitter.Feed(frame[:3]); len(frames) != 0 {
		t.Fatalf("Expected no frame from partial data, got %d", len(frames))
	}

	frames := splitter.Feed(frame[3:])
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame after completion, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("Reassembled frame mismatch: %x", frames[0])
	}
}

func TestJPEGFrameSplitter_GarbageBeforeStart(t *testing.T) {
	splitter := newJPEGFrameSplitter()
	frame := fakeJPEG(0xAA)
	data := append([]byte{0x00, 0x11, 0x22}, frame...)

	frames := splitter.Feed(data)
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("Expected garbage to be skipped, got %x", frames[0])
	}
}

func TestJPEGFrameSplitter_MarkerSplitAcrossFeeds(t *testing.T) {
	splitter := newJPEGFrameSplitter()
	frame := fakeJPEG(0x01)

	// 開始マーカーの0xFFと0xD8が別のFeedに分かれるケース
	if frames := splitter.Feed([]byte{0x00, 0xFF}); len(frames) != 0 {
		t.Fatalf("Expected no frame, got %d", len(frames))
	}
	frames := splitter.Feed(append([]byte{0xD8, 0x01}, []byte{0xFF, 0xD9}...))
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame after marker completion, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], frame) {
		t.Errorf("Reassembled frame mismatch: %x", frames[0])
	}
}
