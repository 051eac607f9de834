package eccfile

import (
	"bufio"
	"bytes"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSource creates a source tree with one file of deterministic
// pseudo-random content and returns its directory and content.
func writeSource(t *testing.T, name string, size int, seed int64) (string, []byte) {
	t.Helper()
	dir := t.TempDir()
	content := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(content)
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return dir, content
}

func generate(t *testing.T, params Params, srcDir string, files []FileInfo) string {
	t.Helper()
	eccPath := filepath.Join(t.TempDir(), "backup.ecc")
	w, err := NewWriter(eccPath, params, DefaultFormat())
	require.NoError(t, err)
	for _, fi := range files {
		f, err := os.Open(filepath.Join(srcDir, fi.RelPath))
		require.NoError(t, err)
		require.NoError(t, w.AddFile(fi.RelPath, f, fi.Size))
		f.Close()
	}
	require.NoError(t, w.Close())
	return eccPath
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, params := range []Params{fixedParams(), adaptiveParams()} {
		format := DefaultFormat()
		raw := headerBytes(params, format, "0ujtsYcgvSTl8PAuAdqWYSMnLOv", time.Now())
		got, gotFormat, n, err := parseHeader(bufio.NewReader(bytes.NewReader(raw)))
		require.NoError(t, err)
		assert.Equal(t, params, got)
		assert.Equal(t, format, gotFormat)
		assert.Equal(t, int64(len(raw)), n)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.ecc")
	require.NoError(t, os.WriteFile(path, []byte("not an ecc file\n"), 0o644))
	_, err := Open(path)
	assert.ErrorIs(t, err, ErrBadMagic)
}

// Scenario: a 3-block file under a fixed rate; corrupt bytes inside
// block 2 of the source within the correctable bound; repair restores
// the file bit-exact, with blocks 1 and 3 untouched and valid.
func TestRepairRestoresCorruptedBlock(t *testing.T) {
	params := fixedParams() // k=153, can repair 51 bytes per block
	srcDir, content := writeSource(t, "photos/summer.raw", 3*153, 7)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "photos/summer.raw", Size: int64(len(content))}})

	// Corrupt 20 bytes in the second block.
	corrupted := append([]byte(nil), content...)
	for i := 160; i < 180; i++ {
		corrupted[i] ^= 0x5A
	}
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "photos/summer.raw"), corrupted, 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()

	outDir := t.TempDir()
	report, err := Repair(r, RepairOptions{SrcDir: srcDir, OutDir: outDir})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, 2, report.Files[0].Valid)
	assert.Equal(t, 1, report.Files[0].Repaired)
	assert.Equal(t, 0, report.Files[0].Unrepairable)

	got, err := os.ReadFile(filepath.Join(outDir, "photos/summer.raw"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

// Corrupting track i's bytes in the ecc file never changes the decoded
// output of any other track: only block 2 degrades, and since its
// source bytes are intact the staged copy stays bit-exact.
func TestTrackIndependence(t *testing.T) {
	params := fixedParams()
	srcDir, content := writeSource(t, "a.bin", 3*153, 11)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "a.bin", Size: int64(len(content))}})

	ecc, err := os.ReadFile(eccPath)
	require.NoError(t, err)
	trackSize := 32 + 102
	// The track region is the tail of the single entry.
	trackStart := len(ecc) - 3*trackSize
	for i := trackStart + trackSize; i < trackStart+2*trackSize; i++ {
		ecc[i] ^= 0xFF
	}
	require.NoError(t, os.WriteFile(eccPath, ecc, 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()

	outDir := t.TempDir()
	report, err := Repair(r, RepairOptions{SrcDir: srcDir, OutDir: outDir})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, 2, report.Files[0].Valid)
	assert.Equal(t, 1, report.Files[0].Unrepairable)

	got, err := os.ReadFile(filepath.Join(outDir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got, "unrepairable track must keep the input bytes verbatim")
}

func TestVerifyIsDryRun(t *testing.T) {
	params := fixedParams()
	srcDir, content := writeSource(t, "a.bin", 459, 13)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "a.bin", Size: int64(len(content))}})

	corrupted := append([]byte(nil), content...)
	corrupted[10] ^= 1
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.bin"), corrupted, 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()

	report, err := Verify(r, RepairOptions{SrcDir: srcDir})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, 1, report.Files[0].Repaired)

	// The source is untouched.
	got, err := os.ReadFile(filepath.Join(srcDir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, corrupted, got)
}

func TestMetadataIntraFieldRepair(t *testing.T) {
	params := fixedParams()
	srcDir, content := writeSource(t, "docs/thesis.pdf", 200, 17)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "docs/thesis.pdf", Size: int64(len(content))}})

	ecc, err := os.ReadFile(eccPath)
	require.NoError(t, err)
	// Flip two bytes of the recorded path.
	pathPos := bytes.Index(ecc, []byte("docs/thesis.pdf"))
	require.Greater(t, pathPos, 0)
	ecc[pathPos] ^= 0x01
	ecc[pathPos+3] ^= 0x02
	require.NoError(t, os.WriteFile(eccPath, ecc, 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()

	entry, err := r.Next()
	require.NoError(t, err)
	assert.True(t, entry.MetaRepaired)
	assert.Equal(t, "docs/thesis.pdf", entry.RelPath)
	assert.Equal(t, int64(len(content)), entry.FileSize)
}

func TestReplicationVote(t *testing.T) {
	params := fixedParams()
	params.Replication = 3
	srcDir, content := writeSource(t, "a.bin", 300, 19)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "a.bin", Size: int64(len(content))}})

	ecc, err := os.ReadFile(eccPath)
	require.NoError(t, err)
	// Trash a stretch of the first entry copy; the two clean copies
	// outvote it byte by byte.
	first := bytes.Index(ecc, DefaultEntryMarker)
	require.GreaterOrEqual(t, first, 0)
	for i := first + 15; i < first+35; i++ {
		ecc[i] ^= 0xA7
	}
	require.NoError(t, os.WriteFile(eccPath, ecc, 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()

	entry, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Copies)
	assert.Equal(t, "a.bin", entry.RelPath)
	assert.False(t, entry.MetaRepaired)
}

func TestVoteBytes(t *testing.T) {
	a := []byte("hello world")
	b := []byte("heXlo world")
	c := []byte("hello worXd")
	assert.Equal(t, []byte("hello world"), voteBytes([][]byte{a, b, c}))

	// Modal length wins when a copy was truncated.
	short := []byte("hel")
	assert.Equal(t, []byte("hello world"), voteBytes([][]byte{a, short, c}))
}

func TestSizeMismatchPolicy(t *testing.T) {
	params := fixedParams()
	srcDir, content := writeSource(t, "a.bin", 459, 23)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "a.bin", Size: int64(len(content))}})

	// Shrink the source file after generation.
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.bin"), content[:400], 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	report, err := Repair(r, RepairOptions{SrcDir: srcDir, OutDir: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.True(t, report.Files[0].Skipped)
	assert.Contains(t, report.Files[0].Note, "recorded")
	r.Close()

	// With IgnoreSize the run proceeds; truncated blocks repair back to
	// their recorded content where the bound allows.
	r, err = Open(eccPath)
	require.NoError(t, err)
	defer r.Close()
	report, err = Repair(r, RepairOptions{SrcDir: srcDir, OutDir: t.TempDir(), IgnoreSize: true})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.False(t, report.Files[0].Skipped)
}

func TestOnlyFilter(t *testing.T) {
	params := fixedParams()
	srcDir, _ := writeSource(t, "a.bin", 100, 29)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.bin"), []byte("other file content"), 0o644))
	eccPath := generate(t, params, srcDir, []FileInfo{
		{RelPath: "a.bin", Size: 100},
		{RelPath: "b.bin", Size: 18},
	})

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()
	report, err := Verify(r, RepairOptions{SrcDir: srcDir, Only: map[string]struct{}{"b.bin": {}}})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "b.bin", report.Files[0].RelPath)
}

func TestAdaptiveRoundTrip(t *testing.T) {
	params := adaptiveParams()
	srcDir, content := writeSource(t, "big.bin", 8000, 31)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "big.bin", Size: int64(len(content))}})

	// Corrupt a little in the header region and a little in the tail.
	corrupted := append([]byte(nil), content...)
	for i := 0; i < 10; i++ {
		corrupted[i] ^= 0x33
	}
	for i := 7900; i < 7905; i++ {
		corrupted[i] ^= 0x44
	}
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "big.bin"), corrupted, 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()
	outDir := t.TempDir()
	report, err := Repair(r, RepairOptions{SrcDir: srcDir, OutDir: outDir})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, 0, report.Files[0].Unrepairable)
	assert.GreaterOrEqual(t, report.Files[0].Repaired, 2)

	got, err := os.ReadFile(filepath.Join(outDir, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestHeaderOnlyMode(t *testing.T) {
	params := fixedParams()
	params.HeaderSize = 153 // exactly one block
	srcDir, content := writeSource(t, "a.bin", 1000, 37)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "a.bin", Size: int64(len(content))}})

	// Corrupt inside the protected prefix and beyond it.
	corrupted := append([]byte(nil), content...)
	corrupted[50] ^= 0x77
	corrupted[800] ^= 0x77
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.bin"), corrupted, 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()
	outDir := t.TempDir()
	report, err := Repair(r, RepairOptions{SrcDir: srcDir, OutDir: outDir})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, 1, report.Files[0].Blocks)
	assert.Equal(t, 1, report.Files[0].Repaired)

	got, err := os.ReadFile(filepath.Join(outDir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, content[:153], got[:153], "protected prefix repaired")
	assert.Equal(t, corrupted[153:], got[153:], "unprotected remainder copied verbatim")
}

func TestPredictSizeIsExact(t *testing.T) {
	for _, params := range []Params{fixedParams(), adaptiveParams()} {
		srcDir, _ := writeSource(t, "a.bin", 2000, 41)
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.bin"), make([]byte, 100), 0o644))
		files := []FileInfo{
			{RelPath: "a.bin", Size: 2000},
			{RelPath: "b.bin", Size: 100},
		}
		eccPath := generate(t, params, srcDir, files)

		predicted, err := PredictSize(params, DefaultFormat(), files)
		require.NoError(t, err)
		st, err := os.Stat(eccPath)
		require.NoError(t, err)
		assert.Equal(t, st.Size(), predicted, "adaptive=%v", params.Adaptive)
	}
}

func TestRegenerateIndexMatchesWriter(t *testing.T) {
	params := fixedParams()
	srcDir, _ := writeSource(t, "a.bin", 459, 43)
	eccPath := generate(t, params, srcDir, []FileInfo{{RelPath: "a.bin", Size: 459}})

	written, err := ReadIndex(eccPath + IndexSuffix)
	require.NoError(t, err)
	require.NotEmpty(t, written)

	rebuiltPath := eccPath + ".rebuilt.idx"
	n, err := RegenerateIndex(eccPath, rebuiltPath, DefaultFormat())
	require.NoError(t, err)
	rebuilt, err := ReadIndex(rebuiltPath)
	require.NoError(t, err)
	assert.Equal(t, written, rebuilt)
	assert.Equal(t, len(rebuilt), n)
}

func TestReaderSkipsCorruptEntry(t *testing.T) {
	params := fixedParams()
	srcDir, _ := writeSource(t, "a.bin", 100, 47)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.bin"), make([]byte, 80), 0o644))
	eccPath := generate(t, params, srcDir, []FileInfo{
		{RelPath: "a.bin", Size: 100},
		{RelPath: "b.bin", Size: 80},
	})

	// Destroy the first entry's delimiters so it cannot be parsed.
	ecc, err := os.ReadFile(eccPath)
	require.NoError(t, err)
	body := bytes.Index(ecc, DefaultEntryMarker) + len(DefaultEntryMarker)
	next := bytes.Index(ecc[body:], DefaultEntryMarker) + body
	for i := body; i < next; i++ {
		ecc[i] = 'x'
	}
	require.NoError(t, os.WriteFile(eccPath, ecc, 0o644))

	r, err := Open(eccPath)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrEntryCorrupt)

	entry, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "b.bin", entry.RelPath)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
