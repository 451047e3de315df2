package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/service"
	pkggrpc "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
)

type fakeClient struct {
	indexed  []proto.Document
	queries  []string
	response proto.SearchResponse
	err      error
}

func (f *fakeClient) Index(_ context.Context, docs []proto.Document) (proto.IndexResponse, error) {
	f.indexed = docs
	return proto.IndexResponse{Generation: 7, Documents: len(docs), Terms: 3}, f.err
}

func (f *fakeClient) Search(_ context.Context, query string, _ int) (proto.SearchResponse, error) {
	f.queries = append(f.queries, query)
	return f.response, f.err
}

func (f *fakeClient) Generation(context.Context) (proto.GenerationResponse, error) {
	return proto.GenerationResponse{ID: 7, State: "ready", Documents: 2, Terms: 3, BuiltAt: 1700000000000}, f.err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func run(t *testing.T, client SearchClient, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(func(string, time.Duration) (SearchClient, io.Closer, error) {
		return client, nopCloser{}, nil
	})
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestSendsEveryLine(t *testing.T) {
	dir := t.TempDir()
	a := writeLog(t, dir, "a.log", `{"level":"INFO","msg":"started"}`+"\n")
	b := writeLog(t, dir, "b.log", "plain\nsecond\n")
	client := &fakeClient{}

	out, err := run(t, client, "", "ingest", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 3 documents")
	assert.Contains(t, out, "generation 7")
	require.Len(t, client.indexed, 3)
	assert.Equal(t, filepath.ToSlash(a)+":0", client.indexed[0].ID)
	assert.Equal(t, filepath.ToSlash(b)+":6", client.indexed[2].ID)
}

func TestIngestErrors(t *testing.T) {
	_, err := run(t, &fakeClient{}, "", "ingest")
	assert.Error(t, err)

	empty := writeLog(t, t.TempDir(), "empty.log", "\n\n")
	_, err = run(t, &fakeClient{}, "", "ingest", empty)
	assert.ErrorIs(t, err, errNoDocuments)
}

type capturingProducer struct {
	brokers []string
	topic   string
	events  []kafka.Event
}

func (c *capturingProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	c.events = append(c.events, events...)
	return nil
}

func (c *capturingProducer) Close() error { return nil }

func TestIngestPublishesWithBrokers(t *testing.T) {
	prod := &capturingProducer{}
	orig := newProducer
	newProducer = func(brokers []string, topic string) kafka.Publisher {
		prod.brokers, prod.topic = brokers, topic
		return prod
	}
	t.Cleanup(func() { newProducer = orig })

	path := writeLog(t, t.TempDir(), "app.log", "one\ntwo\n")
	client := &fakeClient{}
	out, err := run(t, client, "", "ingest", "--brokers", "k1:9092,k2:9092", "--topic", "logs", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Published 2 documents")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, prod.brokers)
	assert.Equal(t, "logs", prod.topic)
	require.Len(t, prod.events, 1)
	req, ok := prod.events[0].Value.(proto.IndexRequest)
	require.True(t, ok)
	assert.Len(t, req.Documents, 2)
	assert.Nil(t, client.indexed)
}

func TestSearchOutput(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "app.log", "first line\ndisk full on node-3\n")
	client := &fakeClient{response: proto.SearchResponse{
		Generation: 2,
		TotalHits:  1,
		Results:    []proto.SearchResult{{DocID: "app.log:11", Score: 1.2345, MatchedTerms: []string{"disk"}}},
	}}

	out, err := run(t, client, "", "search", "--log-dir", dir, "--show-record", "disk")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] app.log:11 (1.2345)")
	assert.Contains(t, out, "disk full on node-3")
	assert.Equal(t, []string{"disk"}, client.queries)

	out, err = run(t, client, "", "search", "--json", "disk")
	require.NoError(t, err)
	assert.Contains(t, out, `"doc_id": "app.log:11"`)

	out, err = run(t, &fakeClient{}, "", "search", "zebra")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearchRequiresOneArg(t *testing.T) {
	_, err := run(t, &fakeClient{}, "", "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchFlags(t *testing.T) {
	cmd := newSearchCmd(&app{opts: &rootOptions{}})
	flag := cmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)
}

func TestReplLoop(t *testing.T) {
	client := &fakeClient{}
	out, err := run(t, client, "cat\n\n  dog AND sat \nexit\nnever\n", "repl")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog AND sat"}, client.queries)
	assert.Equal(t, 4, strings.Count(out, "search> "))
}

func TestReplKeepsGoingAfterError(t *testing.T) {
	client := &fakeClient{err: errors.New("malformed")}
	out, err := run(t, client, "(cat\n", "repl")
	require.NoError(t, err)
	assert.Contains(t, out, "error: malformed")
}

func TestGenerationCmd(t *testing.T) {
	out, err := run(t, &fakeClient{}, "", "generation")
	require.NoError(t, err)
	assert.Contains(t, out, "Generation:     7 (ready)")
	assert.Contains(t, out, "2023-11-14T22:13:20Z")
}

func startSearchProcess(t *testing.T) string {
	t.Helper()
	svc, err := service.New(service.Options{Tokenizer: "simple", Scorer: "bm25", Workers: 2})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	srv := pkggrpc.NewServer()
	service.RegisterRPC(srv, svc, time.Second)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)
	return ln.Addr().String()
}

func TestRPCClientEndToEnd(t *testing.T) {
	addr := startSearchProcess(t)
	dir := t.TempDir()
	path := writeLog(t, dir, "app.log",
		`{"level":"ERROR","msg":"disk full"}`+"\n"+`{"level":"INFO","msg":"disk ok"}`+"\n")

	root := NewRootCommand(DialRPC)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--addr", addr, "ingest", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "generation 1")

	client := NewRPCClient(addr, time.Second)
	defer client.Close()
	resp, err := client.Search(context.Background(), "disk AND level:error", 10)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, filepath.ToSlash(path)+":0", resp.Results[0].DocID)

	_, err = client.Search(context.Background(), "(disk", 10)
	var remote *pkggrpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, proto.CodeMalformedQuery, remote.Code)
	assert.Equal(t, resilience.StateClosed, client.breaker.GetState())
}

func TestRecordsResolveFromIngestDirectory(t *testing.T) {
	addr := startSearchProcess(t)
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("logs", 0o755))
	writeLog(t, "logs", "app.log", `{"level":"ERROR","msg":"disk full"}`+"\n")

	exec := func(args ...string) string {
		root := NewRootCommand(DialRPC)
		buf := new(bytes.Buffer)
		root.SetOut(buf)
		root.SetErr(buf)
		root.SetIn(strings.NewReader(""))
		root.SetArgs(append([]string{"--addr", addr}, args...))
		require.NoError(t, root.Execute())
		return buf.String()
	}
	exec("ingest", filepath.Join("logs", "app.log"))
	out := exec("search", "--show-record", "disk")
	assert.Contains(t, out, "logs/app.log:0")
	assert.Contains(t, out, `{"level":"ERROR","msg":"disk full"}`)
	assert.NotContains(t, out, "unreadable")
}

func TestRPCClientUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	client := NewRPCClient(addr, time.Second)
	client.retry.InitialDelay = time.Millisecond
	client.retry.MaxDelay = time.Millisecond
	for range 2 {
		_, err = client.Generation(context.Background())
		assert.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, client.breaker.GetState())
	_, err = client.Generation(context.Background())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestRPCClientRetriesUnsentIndex(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	client := NewRPCClient(addr, time.Second)
	client.retry.InitialDelay = time.Millisecond
	client.retry.MaxDelay = time.Millisecond
	_, err = client.Index(context.Background(), []proto.Document{{ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func startSlowProcess(t *testing.T, delay time.Duration) (string, map[string]*atomic.Int32) {
	t.Helper()
	calls := map[string]*atomic.Int32{
		proto.MethodIndex:  new(atomic.Int32),
		proto.MethodSearch: new(atomic.Int32),
	}
	srv := pkggrpc.NewServer()
	for method, n := range calls {
		srv.Register(method, func(ctx context.Context, _ json.RawMessage) (any, error) {
			n.Add(1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			return struct{}{}, nil
		})
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)
	return ln.Addr().String(), calls
}

func TestTimedOutIndexIsNotResent(t *testing.T) {
	addr, calls := startSlowProcess(t, 2*time.Second)

	client := NewRPCClient(addr, 50*time.Millisecond)
	client.retry.InitialDelay = time.Millisecond
	client.retry.MaxDelay = time.Millisecond
	t.Cleanup(func() { client.Close() })
	_, err := client.Index(context.Background(), []proto.Document{{ID: "a"}})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "attempts failed")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls[proto.MethodIndex].Load())

	searcher := NewRPCClient(addr, 50*time.Millisecond)
	searcher.retry.InitialDelay = time.Millisecond
	searcher.retry.MaxDelay = time.Millisecond
	t.Cleanup(func() { searcher.Close() })
	_, err = searcher.Search(context.Background(), "disk", 10)
	require.Error(t, err)
	assert.Eventually(t, func() bool {
		return calls[proto.MethodSearch].Load() == 3
	}, time.Second, 10*time.Millisecond)
}

func TestWatchPods(t *testing.T) {
	logRoot := t.TempDir()
	for _, dir := range []string{"ls_app_web-1_uid1/web", "kube-system_dns-1_uid2/dns"} {
		require.NoError(t, os.MkdirAll(filepath.Join(logRoot, dir), 0o755))
	}
	web := writeLog(t, filepath.Join(logRoot, "ls_app_web-1_uid1", "web"), "0.log", `{"level":"ERROR","msg":"disk full"}`+"\n")
	writeLog(t, filepath.Join(logRoot, "kube-system_dns-1_uid2", "dns"), "0.log", "dns ok\n")

	client := &fakeClient{}
	cmd := NewRootCommand(func(string, time.Duration) (SearchClient, io.Closer, error) {
		return client, nopCloser{}, nil
	})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"watch", "--pods", "--pod-prefix", "ls_", logRoot})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))

	assert.Contains(t, buf.String(), "watching 1 container log directories")
	require.Len(t, client.indexed, 1)
	assert.Equal(t, filepath.ToSlash(web)+":0", client.indexed[0].ID)

	_, err := run(t, &fakeClient{}, "", "watch", "--pods", "--pod-prefix", "prod_", logRoot)
	assert.ErrorContains(t, err, "no pod log directories")
	_, err = run(t, &fakeClient{}, "", "watch")
	assert.Error(t, err)
}
