package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"mailtriage/pkg/dispatch"
	"mailtriage/pkg/proto"
	"mailtriage/pkg/queue"
)

func newFailingDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.NewDispatcher(queue.New(), func(context.Context, proto.WorkItem) error {
		return errors.New("backend unavailable")
	}, dispatch.Options{DrainInterval: -1})
	require.NoError(t, err)
	return d
}

// executeCmd runs the root command with args and returns everything it printed.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}
