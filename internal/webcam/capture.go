package webcam

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

// Grabber はffmpeg経由でV4L2デバイスからMJPEGフレームを取得する
type Grabber struct {
	device string
	width  int
	height int
	fps    int
}

// NewGrabber は新しいGrabberを作成する
func NewGrabber(device string, width, height, fps int) *Grabber {
	return &Grabber{
		device: device,
		width:  width,
		height: height,
		fps:    fps,
	}
}

// GrabFrame は1フレームをキャプチャしてJPEGバイト列として返す
func (g *Grabber) GrabFrame(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", g.width, g.height),
		"-i", g.device,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-",
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("フレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// Probe はデバイスがキャプチャ可能か短時間で確認する
func (g *Grabber) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := g.GrabFrame(probeCtx)
	return err
}

// Stream は連続キャプチャを開始し、JPEGフレームをチャンネルへ送信する
// コンテキストのキャンセルで停止する
func (g *Grabber) Stream(ctx context.Context, frames chan<- []byte, errs chan<- error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", g.width, g.height),
		"-r", strconv.Itoa(g.fps),
		"-i", g.device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errs <- fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
		return
	}

	if err := cmd.Start(); err != nil {
		errs <- fmt.Errorf("ffmpegの起動に失敗: %w", err)
		return
	}

	go g.readFrames(ctx, cmd, stdout, frames, errs)
}

// readFrames はffmpegの出力からJPEGフレームを切り出して送信する
func (g *Grabber) readFrames(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, frames chan<- []byte, errs chan<- error) {
	defer func() {
		// コンテキストキャンセル時のエラーは無視
		_ = cmd.Wait()
	}()

	splitter := newJPEGFrameSplitter()
	buf := make([]byte, 1<<20)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := stdout.Read(buf)
		if n > 0 {
			for _, frame := range splitter.Feed(buf[:n]) {
				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				select {
				case errs <- fmt.Errorf("フレーム読み取りエラー: %w", err):
				case <-ctx.Done():
				}
			}
			return
		}
	}
}

// JPEGの開始・終了マーカー
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// jpegFrameSplitter はバイトストリームから完全なJPEGフレームを切り出す
type jpegFrameSplitter struct {
	buf bytes.Buffer
}

func newJPEGFrameSplitter() *jpegFrameSplitter {
	return &jpegFrameSplitter{}
}

// Feed はデータを追加し、完成したフレームをすべて返す
// フレーム途中のデータは次回のFeedまで内部に保持される
func (s *jpegFrameSplitter) Feed(data []byte) [][]byte {
	s.buf.Write(data)

	var complete [][]byte
	for {
		pending := s.buf.Bytes()

		start := bytes.Index(pending, jpegSOI)
		if start == -1 {
			// 開始マーカーなし: 末尾の0xFFだけ残して捨てる
			if len(pending) > 0 && pending[len(pending)-1] == 0xFF {
				s.buf.Reset()
				s.buf.WriteByte(0xFF)
			} else {
				s.buf.Reset()
			}
			return complete
		}

		end := bytes.Index(pending[start+2:], jpegEOI)
		if end == -1 {
			// フレームが未完: 開始マーカー以降を保持
			if start > 0 {
				remaining := append([]byte(nil), pending[start:]...)
				s.buf.Reset()
				s.buf.Write(remaining)
			}
			return complete
		}

		frameEnd := start + 2 + end + 2
		frame := append([]byte(nil), pending[start:frameEnd]...)
		complete = append(complete, frame)

		remaining := append([]byte(nil), pending[frameEnd:]...)
		s.buf.Reset()
		s.buf.Write(remaining)
	}
}
