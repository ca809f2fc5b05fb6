package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-evstream/config"
)

const eventLog = `{"code":"command_complete","opcode":"write_scan_enable"}
{"code":"command_complete","opcode":"write_local_name"}
{"code":"command_status","opcode":"inquiry"}
{"code":"inquiry_result","address":"00:1A:7D:DA:71:13"}
{"code":"inquiry_complete"}
`

func discardLogger() logrus.FieldLogger {
	ll := logrus.New()
	ll.Out = io.Discard
	return ll
}

func TestRunCheckPasses(t *testing.T) {
	var out bytes.Buffer
	ok, err := runCheck(
		context.Background(),
		discardLogger(),
		[]byte(eventLog),
		[]byte(`
- event: command_complete
  opcode: write_local_name
- event: inquiry_result
  address: 00:1A:7D:DA:71:13
- event: inquiry_complete
`),
		time.Second,
		10,
		&out,
	)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ok: 3 expectation(s) matched\n", out.String())
}

func TestRunCheckReportsMismatch(t *testing.T) {
	var out bytes.Buffer
	ok, err := runCheck(
		context.Background(),
		discardLogger(),
		[]byte(eventLog),
		[]byte(`
- event: inquiry_complete
- event: inquiry_result
  address: 00:1A:7D:DA:71:13
`),
		20*time.Millisecond,
		3,
		&out,
	)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "entry 1 did not match")
	assert.Contains(t, out.String(), "InquiryResult(00:1A:7D:DA:71:13)")
	assert.Contains(t, out.String(), "last 3 event(s)")
	assert.Contains(t, out.String(), "code: inquiry_complete")
}

func TestRunCheckInvalidInput(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	_, err := runCheck(ctx, discardLogger(), []byte(eventLog), []byte(`[]`), time.Second, 10, &out)
	assert.Error(t, err)

	_, err = runCheck(ctx, discardLogger(), []byte(eventLog), []byte(`- event: nope`), time.Second, 10, &out)
	assert.Error(t, err)

	_, err = runCheck(
		ctx,
		discardLogger(),
		[]byte(`{"code":`),
		[]byte(`- event: inquiry_complete`),
		time.Second,
		10,
		&out,
	)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	noEnv := func(string) (string, bool) { return "", false }

	cfg, err := loadConfig("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)

	path := filepath.Join(t.TempDir(), "evstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tail_size: 3\n"), 0o600))

	cfg, err = loadConfig(path, func(k string) (string, bool) {
		if k == config.EnvDefaultTimeout {
			return "1s", true
		}
		return "", false
	})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TailSize)
	assert.Equal(t, time.Second, cfg.DefaultTimeout)
}
