package health

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterfaceCheckerReportsReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewInterfaceChecker("main", ln.Addr().String())
	res := checker.Check(context.Background())
	assert.True(t, res.Healthy)
	assert.Equal(t, CheckTypeInterface, checker.Type())
}

func TestInterfaceCheckerReportsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	checker := NewInterfaceChecker("main", addr)
	res := checker.Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "unreachable")
}
