package chdinfo_test

import (
	"context"
	"path/filepath"
	"testing"

	"b2pc/internal/chdinfo"
	"b2pc/internal/report"
	"b2pc/internal/testsupport"
	"b2pc/internal/toolrun"
)

const cdReport = `chdman - MAME Compressed Hunks of Data (CHD) manager 0.262
Input file:   game.chd
File Version: 5
Logical size: 734,003,200 bytes
Hunk Size:    19,584 bytes
CHD size:     412,345,678 bytes
Ratio:        56.2%
Metadata:     Tag='CHT2'  Index=0   Length=90 bytes
              TRACK:1 TYPE:MODE2_RAW SUBTYPE:NONE FRAMES:299840
Metadata:     Tag='CHT2'  Index=1   Length=90 bytes
              TRACK:2 TYPE:AUDIO SUBTYPE:NONE FRAMES:1200
`

func TestParseCD(t *testing.T) {
	info := chdinfo.Parse(cdReport)
	if info.Version != 5 {
		t.Fatalf("version = %d", info.Version)
	}
	if info.LogicalSize != 734003200 || info.FileSize != 412345678 {
		t.Fatalf("sizes = %d/%d", info.LogicalSize, info.FileSize)
	}
	if info.Ratio != 56.2 {
		t.Fatalf("ratio = %v", info.Ratio)
	}
	if info.Media != chdinfo.MediaCD || info.Tracks != 2 {
		t.Fatalf("media = %s tracks = %d", info.Media, info.Tracks)
	}
}

func TestParseMediaFallback(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"dvd tag", "Logical size: 1,000 bytes\nMetadata:     Tag='DVD '  Index=0   Length=1 bytes\n", chdinfo.MediaDVD},
		{"large untagged", "Logical size: 4,700,372,992 bytes\n", chdinfo.MediaDVD},
		{"small untagged", "Logical size: 700,000,000 bytes\n", chdinfo.MediaCD},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := chdinfo.Parse(tc.out).Media; got != tc.want {
				t.Fatalf("media = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestReaderRunsStubTool(t *testing.T) {
	reg := testsupport.StubTools(t, filepath.Join(t.TempDir(), "tools"))
	reader := chdinfo.NewReader(toolrun.New(reg, report.NewReporter(nil, nil)))

	chd := filepath.Join(t.TempDir(), "movie-dvd.chd")
	testsupport.WriteFile(t, chd, 16)

	info, err := reader.Read(context.Background(), chd)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.Path != chd || info.Media != chdinfo.MediaDVD || info.Version != 5 {
		t.Fatalf("unexpected info %+v", info)
	}
}
