package labels

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

func TestParseDetails(t *testing.T) {
	cases := []struct {
		details string
		label   string
		count   int
	}{
		{"Facebook packets: 42 other text", "Facebook", 42},
		{"  Google   packets: 7 bytes: 900", "Google", 7},
		{"HTTP_Proxy packets: 1310", "HTTP_Proxy", 1310},
		{"Amazon packets: 12\tbytes: 4", "Amazon", 12},
	}
	for _, c := range cases {
		label, count, err := ParseDetails(c.details)
		require.NoError(t, err, c.details)
		assert.Equal(t, c.label, label)
		assert.Equal(t, c.count, count)
		assert.NotContains(t, label, "packets")
	}
}

func TestParseDetails_Errors(t *testing.T) {
	for _, details := range []string{
		"Facebook 42",            // no markers at all
		"Facebook packets 42",    // no "packets: "
		"packets: 42",            // nothing before the marker
		"Facebook packets: many", // count is not an integer
		"Facebook packets: ",     // count is empty
	} {
		_, _, err := ParseDetails(details)
		var perr *ParseError
		assert.True(t, errors.As(err, &perr), "expected ParseError for %q", details)
	}
}

func TestFlowFileName(t *testing.T) {
	assert.Equal(t, "tcp_syn/a.pcap", FlowFileName("/data/SampleFlows/tcp_syn/a.pcap", "SampleFlows/"))
	assert.Equal(t, "/elsewhere/a.pcap", FlowFileName("/elsewhere/a.pcap", "SampleFlows/"))
	assert.Equal(t, "x.pcap", FlowFileName("x.pcap", ""))
}

func TestClean(t *testing.T) {
	raw := strings.Join([]string{
		"FlowFilePath,LabelDetails",
		`/srv/SampleFlows/10.2.10.130_48239_216.58.223.74_443.pcap,"Google packets: 42 bytes: 1200, flows: 1"`,
		`/srv/SampleFlows/10.2.83.121_41957_5.62.53.224_80.pcap,HTTP packets: 3 bytes: 200`,
	}, "\n") + "\n"

	var out strings.Builder
	n, err := Clean(strings.NewReader(raw), &out, "SampleFlows/")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "FlowFileName,Label,NumPackets", lines[0])
	assert.Equal(t, "10.2.10.130_48239_216.58.223.74_443.pcap,Google,42", lines[1])
	assert.Equal(t, "10.2.83.121_41957_5.62.53.224_80.pcap,HTTP,3", lines[2])
}

func TestClean_AbortsOnMalformedRow(t *testing.T) {
	raw := "FlowFilePath,LabelDetails\na.pcap,Google packets: 1 x\nb.pcap,garbage\n"

	var out strings.Builder
	_, err := Clean(strings.NewReader(raw), &out, "")

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Row)
	assert.Empty(t, out.String(), "nothing is written when a row fails")
}

func TestClean_MissingColumn(t *testing.T) {
	_, err := Clean(strings.NewReader("Path,Details\na,b\n"), &strings.Builder{}, "")
	assert.ErrorContains(t, err, "FlowFilePath")
}

func TestCleanFileAndLoad(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "raw.csv")
	out := filepath.Join(dir, "labels.csv")
	require.NoError(t, os.WriteFile(in, []byte(
		"FlowFilePath,LabelDetails\n"+
			"SampleFlows/a.pcap,YouTube packets: 10 bytes: 1\n"+
			"SampleFlows/b.pcap,SSDP packets: 2 bytes: 1\n"), 0o644))

	_, err := CleanFile(in, out, "SampleFlows/")
	require.NoError(t, err)

	flows, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, []model.LabeledFlow{
		{FlowFileName: "a.pcap", Label: "YouTube", NumPackets: 10},
		{FlowFileName: "b.pcap", Label: "SSDP", NumPackets: 2},
	}, flows)
}

func TestCleanFile_LeavesNoOutputOnError(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "raw.csv")
	out := filepath.Join(dir, "labels.csv")
	require.NoError(t, os.WriteFile(in, []byte("FlowFilePath,LabelDetails\na.pcap,no marker here\n"), 0o644))

	_, err := CleanFile(in, out, "")
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
