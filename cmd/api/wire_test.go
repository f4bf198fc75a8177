package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/docqa/engine/docqa"
	"github.com/WessleyAI/docqa/pkg/natsutil"
)

type recordingProcessor struct {
	paths chan string
	err   error
}

func (p *recordingProcessor) ProcessDocument(_ context.Context, path string) (docqa.Summary, error) {
	p.paths <- path
	if p.err != nil {
		return docqa.Summary{}, p.err
	}
	return docqa.Summary{DocumentID: "doc-1", Source: path}, nil
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := natsutil.Connect(srv.ClientURL(), "api-test", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestSubscribeProcessRequests(t *testing.T) {
	nc := startNATS(t)
	p := &recordingProcessor{paths: make(chan string, 4)}
	subject := natsutil.NewPublisher(nc, "docqa").Subject(docqa.EventProcessRequested)

	if _, err := subscribeProcessRequests(nc, subject, p, slog.Default()); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	natsutil.Publish(ctx, nc, subject, docqa.ProcessRequest{})
	natsutil.Publish(ctx, nc, subject, docqa.ProcessRequest{Path: "report.pdf"})
	nc.Flush()

	select {
	case got := <-p.paths:
		if got != "report.pdf" {
			t.Fatalf("processed %q, want report.pdf", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("process request not handled")
	}
	select {
	case got := <-p.paths:
		t.Fatalf("request without a path should be ignored, processed %q", got)
	default:
	}
}

func TestSubscribeProcessRequestsKeepsGoingAfterFailure(t *testing.T) {
	nc := startNATS(t)
	p := &recordingProcessor{paths: make(chan string, 4), err: errors.New("cannot open")}
	subject := "docqa.process"

	if _, err := subscribeProcessRequests(nc, subject, p, slog.Default()); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"a.pdf", "b.pdf"} {
		natsutil.Publish(context.Background(), nc, subject, docqa.ProcessRequest{Path: path})
	}
	nc.Flush()

	for _, want := range []string{"a.pdf", "b.pdf"} {
		select {
		case got := <-p.paths:
			if got != want {
				t.Fatalf("processed %q, want %q", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("request for %s not handled", want)
		}
	}
}
