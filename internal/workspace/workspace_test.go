package workspace_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/signalnine/skillbench/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerFreshReplacesPrevious(t *testing.T) {
	m, err := workspace.NewManager(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)

	first, err := m.Fresh()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(first, "a.txt"), []byte("x"), 0o644))

	second, err := m.Fresh()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.NoDirExists(t, first)
	assert.DirExists(t, second)

	require.NoError(t, m.Reset())
	assert.NoDirExists(t, second)
	require.NoError(t, m.Close())
	assert.DirExists(t, m.Root(), "caller-supplied root survives Close")
}

func TestManagerPrivateRoot(t *testing.T) {
	m, err := workspace.NewManager("")
	require.NoError(t, err)
	_, err = m.Fresh()
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.NoDirExists(t, m.Root())
}

func TestManagerResolvesRelativeRoot(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)

	m, err := workspace.NewManager("work")
	require.NoError(t, err)
	defer m.Close()

	assert.True(t, filepath.IsAbs(m.Root()))
	dir, err := m.Fresh()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir), "task dir %s should be absolute", dir)

	want, err := filepath.EvalSymlinks(filepath.Join(base, "work"))
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestScanOrdersByMtime(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	write := func(name string, age time.Duration) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
		require.NoError(t, os.Chtimes(p, now.Add(-age), now.Add(-age)))
		return p
	}
	old := write("old.xlsx", time.Hour)
	recent := write("Recent.XLSX", time.Minute)
	write("notes.txt", 0)
	write("_skillbench_script.py", 0)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.xlsx"), 0o755))

	assert.Equal(t, []string{recent, old}, workspace.Scan(dir, ".xlsx"))

	all := workspace.Scan(dir, "")
	assert.Len(t, all, 3)
	assert.False(t, slices.ContainsFunc(all, workspace.IsScaffolding))
}

func TestScanMergesExtra(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "out", "report.docx")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, os.WriteFile(nested, []byte("doc"), 0o644))

	assert.Empty(t, workspace.Scan(dir, ".docx"))
	got := workspace.Scan(dir, ".docx", nested, filepath.Join(dir, "gone.docx"))
	assert.Equal(t, []string{nested}, got)
}

func TestScanMissingDir(t *testing.T) {
	assert.Empty(t, workspace.Scan(filepath.Join(t.TempDir(), "nope"), ""))
}

func TestWatcherSeesNestedFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := workspace.Watch(dir)
	require.NoError(t, err)

	top := filepath.Join(dir, "chart.pptx")
	require.NoError(t, os.WriteFile(top, []byte("x"), 0o644))
	sub := filepath.Join(dir, "exports")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	nested := filepath.Join(sub, "deck.pptx")
	require.NoError(t, os.WriteFile(nested, []byte("y"), 0o644))

	assert.Eventually(t, func() bool {
		got := w.Created()
		return slices.Contains(got, top) && slices.Contains(got, nested)
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, w.Close(), nested)
}
