package fingerprint

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/jellysync/internal/shared"
)

type recordingRunner struct {
	mu       sync.Mutex
	calls    [][]string
	fpcalc   []byte
	ffmpegFn func(args []string) error
}

func (r *recordingRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()

	switch name {
	case FFmpegCommand:
		if r.ffmpegFn != nil {
			return nil, r.ffmpegFn(args)
		}
		return nil, nil
	case FpcalcCommand:
		return r.fpcalc, nil
	}
	return nil, errors.New("unexpected command " + name)
}

func TestChromaprint(t *testing.T) {
	t.Run("FingerprintURL downloads, converts and fingerprints", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/preview.mp3" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte("ID3 fake audio"))
		}))
		defer server.Close()

		runner := &recordingRunner{fpcalc: []byte(`{"duration": 30.0, "fingerprint": [1, 2, 4294967295]}`)}
		var input string
		runner.ffmpegFn = func(args []string) error {
			input = args[2]
			if got := string(mustRead(t, input)); got != "ID3 fake audio" {
				t.Errorf("expected downloaded preview as ffmpeg input, got %q", got)
			}
			return nil
		}

		c := NewChromaprint(ChromaprintOpts{Runner: runner.run, TempDir: t.TempDir()})
		fp, err := c.FingerprintURL(context.Background(), server.URL+"/preview.mp3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(fp, []uint32{1, 2, 4294967295}) {
			t.Errorf("unexpected fingerprint %v", fp)
		}

		if len(runner.calls) != 2 {
			t.Fatalf("expected 2 commands, got %d", len(runner.calls))
		}
		ffmpeg := strings.Join(runner.calls[0], " ")
		for _, want := range []string{"-acodec pcm_s16le", "-ar 44100", "-ac 2", "-y"} {
			if !strings.Contains(ffmpeg, want) {
				t.Errorf("ffmpeg args %q missing %q", ffmpeg, want)
			}
		}
		if runner.calls[1][0] != FpcalcCommand || runner.calls[1][1] != "-raw" {
			t.Errorf("unexpected fpcalc call %v", runner.calls[1])
		}
		if _, err := os.Stat(input); !os.IsNotExist(err) {
			t.Errorf("expected temporary preview to be removed")
		}
	})

	t.Run("preview download failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		c := NewChromaprint(ChromaprintOpts{Runner: (&recordingRunner{}).run, TempDir: t.TempDir()})
		if _, err := c.FingerprintURL(context.Background(), server.URL); !errors.Is(err, shared.ErrFingerprintFailed) {
			t.Errorf("expected ErrFingerprintFailed, got %v", err)
		}
	})

	t.Run("stuck conversion is bounded by the tool timeout", func(t *testing.T) {
		runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}

		c := NewChromaprint(ChromaprintOpts{Runner: runner, ToolTimeout: 20 * time.Millisecond, TempDir: t.TempDir()})
		start := time.Now()
		_, err := c.FingerprintFile(context.Background(), "/music/song.flac")
		if !errors.Is(err, shared.ErrFingerprintFailed) {
			t.Errorf("expected ErrFingerprintFailed, got %v", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("expected the conversion to be cut off by the timeout")
		}
	})

	t.Run("malformed fpcalc output", func(t *testing.T) {
		runner := &recordingRunner{fpcalc: []byte("not json")}
		c := NewChromaprint(ChromaprintOpts{Runner: runner.run, TempDir: t.TempDir()})
		if _, err := c.FingerprintFile(context.Background(), "/music/song.flac"); !errors.Is(err, shared.ErrFingerprintFailed) {
			t.Errorf("expected ErrFingerprintFailed, got %v", err)
		}
	})

	t.Run("empty fingerprint", func(t *testing.T) {
		runner := &recordingRunner{fpcalc: []byte(`{"duration": 1.0, "fingerprint": []}`)}
		c := NewChromaprint(ChromaprintOpts{Runner: runner.run, TempDir: t.TempDir()})
		if _, err := c.FingerprintFile(context.Background(), "/music/song.flac"); !errors.Is(err, shared.ErrFingerprintFailed) {
			t.Errorf("expected ErrFingerprintFailed, got %v", err)
		}
	})
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return b
}
