package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-artifactdelivery/pkg/bridge"
	"github.com/go-artifactdelivery/pkg/config"
)

type nopLauncher struct{}

func (nopLauncher) Open(ctx context.Context, path string) error    { return nil }
func (nopLauncher) Reveal(ctx context.Context, path string) error  { return nil }
func (nopLauncher) Install(ctx context.Context, path string) error { return nil }

func newTestServer(t *testing.T) (*Server, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp", 0755))
	cfg := config.NewConfig()
	cfg.CandidateDirs = []string{"/tmp"}
	cfg.TempDir = "/tmp"
	cfg.ReadBufferSize = 1024
	return NewServer(bridge.NewServiceFs(fs, cfg, nopLauncher{}, nil), nil), fs
}

// message is a decoded output line: either a Response or an Event
type message struct {
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func decodeAll(t *testing.T, out []byte) []message {
	t.Helper()
	var msgs []message
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		var m message
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		msgs = append(msgs, m)
	}
	return msgs
}

func TestServeRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("r"), 10*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer srv.Close()

	s, fs := newTestServer(t)
	payload := base64.StdEncoding.EncodeToString([]byte("hello"))
	in := strings.Join([]string{
		`{"id":"1","command":"get_writable_path","fileName":"a.dmg"}`,
		`{"id":"2","command":"download_file","url":"` + srv.URL + `","destination":"/tmp/b.pkg","displayName":"B"}`,
		`{"id":"3","command":"save_downloaded_file","destination":"/tmp/c.bin","payload":"` + payload + `"}`,
		`{"id":"4","command":"open_file","path":"/tmp/b.pkg"}`,
		`{"id":"5","command":"explode"}`,
		`not json`,
		``,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(in), &out))

	responses := map[string]message{}
	var events []message
	for _, m := range decodeAll(t, out.Bytes()) {
		if m.Event != "" {
			events = append(events, m)
			continue
		}
		responses[m.ID] = m
	}

	assert.True(t, responses["1"].OK)
	assert.Equal(t, "/tmp/a.dmg", responses["1"].Message)
	assert.True(t, responses["2"].OK, responses["2"].Error)
	assert.Contains(t, responses["2"].Message, "/tmp/b.pkg")
	assert.True(t, responses["3"].OK, responses["3"].Error)
	assert.True(t, responses["4"].OK)
	assert.False(t, responses["5"].OK)
	assert.Equal(t, "unknown command: explode", responses["5"].Error)
	assert.False(t, responses[""].OK)
	assert.Contains(t, responses[""].Error, "invalid request")

	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, "2", e.ID)
		assert.Equal(t, bridge.EventDownloadProgress, e.Event)
	}
	var last bridge.ProgressPayload
	require.NoError(t, json.Unmarshal(events[len(events)-1].Payload, &last))
	assert.Equal(t, uint64(len(body)), last.Downloaded)
	require.NotNil(t, last.Percentage)
	assert.Equal(t, 100.0, *last.Percentage)

	saved, err := afero.ReadFile(fs, "/tmp/c.bin")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(saved))
}

func TestServeCancelStopsDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write(bytes.Repeat([]byte("s"), 4096))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	s, _ := newTestServer(t)
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(context.Background(), inR, outW)
		outW.Close()
	}()

	lines := bufio.NewScanner(outR)
	next := func() message {
		require.True(t, lines.Scan())
		var m message
		require.NoError(t, json.Unmarshal(lines.Bytes(), &m))
		return m
	}

	_, err := io.WriteString(inW, `{"id":"dl","command":"download_file","url":"`+srv.URL+`","destination":"/tmp/slow.bin"}`+"\n")
	require.NoError(t, err)

	// wait until the transfer is under way
	for m := next(); m.Event == ""; m = next() {
	}

	go io.WriteString(inW, `{"id":"c","command":"cancel","target":"dl"}`+"\n")

	responses := map[string]message{}
	for len(responses) < 2 {
		if m := next(); m.Event == "" {
			responses[m.ID] = m
		}
	}

	assert.True(t, responses["c"].OK)
	assert.False(t, responses["dl"].OK)
	assert.Contains(t, responses["dl"].Error, "cancelled")

	inW.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStreamsDoNotShareRequestIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		w.Write(bytes.Repeat([]byte("s"), 4096))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	s, _ := newTestServer(t)

	// first client: a download that stays in flight under id "dl"
	firstCtx, stopFirst := context.WithCancel(context.Background())
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(firstCtx, inR, outW)
		outW.Close()
	}()

	_, err := io.WriteString(inW, `{"id":"dl","command":"download_file","url":"`+srv.URL+`","destination":"/tmp/slow.bin"}`+"\n")
	require.NoError(t, err)
	lines := bufio.NewScanner(outR)
	require.True(t, lines.Scan())
	go io.Copy(io.Discard, outR)

	// second client: cannot cancel it and may reuse the id
	in := `{"id":"c","command":"cancel","target":"dl"}` + "\n" +
		`{"id":"dl","command":"get_writable_path","fileName":"x.pkg"}`
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(in), &out))

	responses := map[string]message{}
	for _, m := range decodeAll(t, out.Bytes()) {
		responses[m.ID] = m
	}
	assert.False(t, responses["c"].OK)
	assert.Equal(t, "no running request with id dl", responses["c"].Error)
	assert.True(t, responses["dl"].OK, responses["dl"].Error)
	assert.Equal(t, "/tmp/x.pkg", responses["dl"].Message)

	stopFirst()
	inW.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first stream did not stop")
	}
}

func TestCancelUnknownRequest(t *testing.T) {
	s, _ := newTestServer(t)
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(`{"id":"x","command":"cancel","target":"nope"}`), &out))

	msgs := decodeAll(t, out.Bytes())
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].OK)
	assert.Equal(t, "no running request with id nope", msgs[0].Error)
}

func TestDefaultSocketPath(t *testing.T) {
	assert.Equal(t, SocketDir+"/serve-501.sock", DefaultSocketPath("501"))
	assert.Equal(t, SocketDir+"/serve-unknown.sock", DefaultSocketPath(""))
}
