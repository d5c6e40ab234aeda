package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/arbor"
	"github.com/KilimcininKorOglu/arbor/internal/logging"
)

func execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"arbor"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// populate creates a store at dir holding two revisions.
func populate(t *testing.T, dir string) {
	t.Helper()
	code, _, stderr := execute("create", dir, "--backend", "badger", "--revisioning", "differential")
	require.Equal(t, 0, code, stderr)

	st, err := arbor.Open(dir, arbor.WithLogger(logging.NewNop()))
	require.NoError(t, err)
	defer arbor.Close(dir)
	sess, err := st.Session()
	require.NoError(t, err)

	wtx, err := sess.BeginWriteTxn(0, 0)
	require.NoError(t, err)
	require.NoError(t, wtx.InsertElementAsFirstChild("book"))
	require.NoError(t, wtx.InsertNamespace("urn:books", "bk"))
	_, err = wtx.MoveToParent()
	require.NoError(t, err)
	require.NoError(t, wtx.InsertAttribute("id", "7"))
	_, err = wtx.MoveToParent()
	require.NoError(t, err)
	require.NoError(t, wtx.InsertTextAsFirstChild("hello"))
	require.NoError(t, wtx.Commit())
	require.NoError(t, wtx.SetValue("hello, world"))
	require.NoError(t, wtx.Commit())
	require.NoError(t, wtx.Close())
}

func TestRun_Help(t *testing.T) {
	code, stdout, _ := execute("--help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "verify")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, stderr := execute("unknown")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := execute("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "arbor version "+version)

	code, stdout, _ = execute("version", "--short")
	assert.Equal(t, 0, code)
	assert.Equal(t, version+"\n", stdout)
}

func TestRun_Create(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	code, stdout, stderr := execute("create", dir, "--hashing", "postorder")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Created store")
	assert.Contains(t, stdout, "postorder")

	code, _, stderr = execute("create", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "already exists")

	code, _, stderr = execute("create", filepath.Join(t.TempDir(), "bad"), "--backend", "tape")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "storage.backend")
}

func TestRun_InfoVerifyDump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	populate(t, dir)

	t.Run("info", func(t *testing.T) {
		code, stdout, stderr := execute("info", dir, "--revisions")
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "Last revision: 2")
		assert.Contains(t, stdout, "differential")
		assert.Contains(t, stdout, "MAX NODE KEY")
	})

	t.Run("verify", func(t *testing.T) {
		code, stdout, stderr := execute("verify", dir, "--jobs", "2")
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "revision 0: ok")
		assert.Contains(t, stdout, "revision 2: ok")

		code, _, stderr = execute("verify", dir, "--revision", "9")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "revision out of range")
	})

	t.Run("dump", func(t *testing.T) {
		code, stdout, stderr := execute("dump", dir)
		require.Equal(t, 0, code, stderr)
		want := "/\n" +
			"  <book>\n" +
			"    xmlns:bk=\"urn:books\"\n" +
			"    @id=\"7\"\n" +
			"    \"hello, world\"\n"
		assert.Equal(t, want, stdout)

		code, stdout, _ = execute("dump", dir, "--revision", "1")
		require.Equal(t, 0, code)
		assert.Contains(t, stdout, "\"hello\"\n")

		code, stdout, _ = execute("dump", dir, "--revision", "0", "--hashes")
		require.Equal(t, 0, code)
		assert.Regexp(t, `^/  \[0 [0-9a-f]{16}\]\n$`, stdout)
	})

	t.Run("missing store", func(t *testing.T) {
		code, _, stderr := execute("info", filepath.Join(t.TempDir(), "none"))
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "storage not found")
	})
}

func TestRun_Config(t *testing.T) {
	code, stdout, _ := execute("config", "init")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "revisioning:")

	good := filepath.Join(t.TempDir(), "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(stdout), 0o600))
	code, stdout, _ = execute("config", "validate", good)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Configuration is valid")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("hashing:\n  policy: sometimes\n"), 0o600))
	code, _, stderr := execute("config", "validate", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "hashing.policy")

	dir := filepath.Join(t.TempDir(), "store")
	code, _, _ = execute("create", dir, "--compression", "zstd")
	require.Equal(t, 0, code)
	code, stdout, _ = execute("config", "show", dir)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "compression: zstd")
}
