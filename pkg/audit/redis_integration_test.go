//go:build integration

package audit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// redisAddr returns the test Redis address or skips the test.
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("JUNOTRON_TEST_REDIS")
	if addr == "" {
		t.Skip("JUNOTRON_TEST_REDIS not set")
	}
	return addr
}

func TestRedisLogger_LogAndQuery(t *testing.T) {
	key := fmt.Sprintf("junotron:test:%d", time.Now().UnixNano())
	l, err := NewRedisLogger(redisAddr(t), key)
	if err != nil {
		t.Fatalf("NewRedisLogger() error = %v", err)
	}
	defer l.Close()
	defer l.client.Del(context.Background(), key)

	l.maxEvents = 3
	for i, dev := range []string{"edge1", "edge2", "edge1", "edge1"} {
		e := NewEvent("alice", dev, "add").WithDomain("prefix-list").WithGroup(fmt.Sprintf("G%d", i))
		if err := l.Log(e.WithSuccess(true)); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	all, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Query() = %d events, want 3 after trim", len(all))
	}
	if all[0].Group != "G1" {
		t.Errorf("oldest kept event = %s, want G1", all[0].Group)
	}

	edge1, err := l.Query(Filter{Device: "edge1", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(edge1) != 1 || edge1[0].Group != "G2" {
		t.Errorf("Query(edge1, limit 1) = %+v", edge1)
	}
}
