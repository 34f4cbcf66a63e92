package events

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// exportWidth is the column count of a GDELT 2.0 event-export row.
const exportWidth = 61

// exportRow builds a tab-separated export row whose inspected fields are empty
// unless set.
func exportRow(id string, set map[Field]string) string {
	cols := make([]string, exportWidth)
	cols[0] = id
	for i := 1; i < exportWidth; i++ {
		cols[i] = "c" + strconv.Itoa(i)
	}
	for _, f := range CodeFields {
		cols[f] = ""
	}
	for f, v := range set {
		cols[f] = v
	}
	return strings.Join(cols, "\t")
}

func zipArchive(t *testing.T, members map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(members[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func ids(t Table) []string {
	out := make([]string, 0, len(t.Records))
	for _, r := range t.Records {
		out = append(out, r.ID)
	}
	return out
}
