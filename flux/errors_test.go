package flux

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindHierarchy(t *testing.T) {
	cases := []struct {
		kind   Kind
		target Kind
		want   bool
	}{
		{KindFileNotFound, KindOS, true},
		{KindFileNotFound, KindException, true},
		{KindZeroDivision, KindArithmetic, true},
		{KindKey, KindLookup, true},
		{KindJSONDecode, KindValue, true},
		{KindValue, KindJSONDecode, false},
		{KindType, KindValue, false},
		{KindHTTP, KindOS, true},
		{KindException, KindOS, false},
		{Kind("Custom"), KindException, true},
		{Kind("Custom"), Kind("Custom"), true},
		{Kind("Custom"), KindRuntime, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, tc.kind.Matches(tc.target), "%s matches %s", tc.kind, tc.target)
	}
	assert.Equal(t, KindLookup, KindIndex.Parent())
	assert.Equal(t, Kind(""), KindException.Parent())
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"flux error", newError(KindKey, "k"), KindKey},
		{"wrapped flux error", fmt.Errorf("ctx: %w", newError(KindIndex, "i")), KindIndex},
		{"not exist", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, KindFileNotFound},
		{"exist", &fs.PathError{Op: "mkdir", Path: "x", Err: fs.ErrExist}, KindFileExists},
		{"permission", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrPermission}, KindPermission},
		{"is a directory", &fs.PathError{Op: "read", Path: "x", Err: syscall.EISDIR}, KindIsADirectory},
		{"other path error", &fs.PathError{Op: "read", Path: "x", Err: syscall.EIO}, KindOS},
		{"not a directory", &fs.PathError{Op: "open", Path: "f/sub", Err: syscall.ENOTDIR}, KindOS},
		{"link error", &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EXDEV}, KindOS},
		{"syscall error", os.NewSyscallError("fsync", syscall.EINVAL), KindOS},
		{"bare errno", syscall.EIO, KindOS},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, KindConnection},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}, KindConnection},
		{"http client", &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNRESET}}, KindConnection},
		{"dial timeout", &net.OpError{Op: "dial", Err: os.ErrDeadlineExceeded}, KindTimeout},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"os deadline", os.ErrDeadlineExceeded, KindTimeout},
		{"plain", errors.New("boom"), KindRuntime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "ValueError: bad", newError(KindValue, "bad").Error())
	assert.Equal(t, "OSError: disk", (&Error{Kind: KindOS, Err: errors.New("disk")}).Error())
	assert.Equal(t, "EOFError", (&Error{Kind: KindEOF}).Error())
}

func TestOSErrorKeepsCause(t *testing.T) {
	_, statErr := os.Stat("/definitely/not/here")
	err := osError(statErr)

	requireKind(t, err, KindFileNotFound)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Same(t, err, osError(err))
	assert.Nil(t, osError(nil))
}

func TestHostErrorLeavesKindsAlone(t *testing.T) {
	original := newError(KindKey, "k")
	assert.Same(t, original, hostError(KindType, original))

	tagged := hostError(KindType, errors.New("unhashable"))
	requireKind(t, tagged, KindType)
	assert.Nil(t, hostError(KindType, nil))
}

func TestKindOfInterpreterFailures(t *testing.T) {
	e := newTestEngine(t, Config{})
	cases := []struct {
		expr string
		want Kind
	}{
		{"1 // 0", KindZeroDivision},
		{"1 / 0", KindZeroDivision},
		{"5 % 0", KindZeroDivision},
		{"[1, 2][5]", KindIndex},
		{`{"a": 1}["b"]`, KindKey},
		{`"x" + 1`, KindRuntime},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			err := evalError(t, e, tc.expr)
			assert.Equal(t, tc.want, KindOf(err))
			assert.True(t, KindOf(err).Matches(KindException))
		})
	}
	assert.True(t, KindZeroDivision.Matches(KindArithmetic))
}

func TestReadFileThroughFileIsOSError(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o644))

	e := newTestEngine(t, Config{})
	err := evalError(t, e, fmt.Sprintf("read_file(%q)", filepath.Join(plain, "sub")))
	requireKind(t, err, KindOS)
	assert.False(t, KindOf(err).Matches(KindConnection))
}
