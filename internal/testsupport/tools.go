package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"b2pc/internal/tools"
)

// Stub tools key their behaviour on the input file or folder name:
//   - "fail"     the tool prints an error and exits 1
//   - "hang"     the tool sleeps for 30 seconds
//   - "empty"    the tool exits 0 but writes a zero-byte output
//   - "notgc"    dolphin-tool header probe exits 1
//   - "silent"   dolphin-tool header probe exits 0 with no output
//   - "critical" dolphin-tool convert prints the GC/Wii critical marker
//   - "optim"    xiso shrinks the rewritten image
//
// The fake archiver treats an archive as a text file listing one member per
// line; a first line of CORRUPT makes listing fail.

const archiverScript = `cmd="$1"; shift
case "$cmd" in
l)
  [ "$1" = "-slt" ] && shift
  archive="$1"
  if head -n 1 "$archive" | grep -q '^CORRUPT'; then
    echo "ERROR: $archive : Can not open the file as archive" >&2
    exit 2
  fi
  echo "7-Zip (a) stub"
  echo
  echo "Listing archive: $archive"
  echo
  echo "--"
  echo "Path = $archive"
  echo "Type = zip"
  echo
  echo "----------"
  while IFS= read -r member; do
    [ -z "$member" ] && continue
    echo "Path = $member"
    echo "Folder = -"
    echo
  done < "$archive"
  ;;
e|x)
  archive="$1"; shift
  out="."
  for a in "$@"; do
    case "$a" in
      -y) ;;
      -o*) out="${a#-o}" ;;
      *)
        name=$(basename "$a")
        case "$name" in *fail*) echo "ERROR: Data Error : $a" >&2; exit 2 ;; esac
        printf 'payload %s\n' "$a" > "$out/$name"
        ;;
    esac
  done
  echo "Everything is Ok"
  ;;
*)
  echo "unsupported command $cmd" >&2
  exit 7
  ;;
esac
`

const chdmanScript = `cmd="$1"; shift
in=""; out=""; outbin=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i|--input) in="$2"; shift 2 ;;
    -o|--output) out="$2"; shift 2 ;;
    -ob|--outputbin) outbin="$2"; shift 2 ;;
    *) shift ;;
  esac
done
name=$(basename "$in")
case "$name" in *hang*) exec sleep 30 ;; esac
case "$name" in *fail*) echo "Error: unsupported input $name" >&2; exit 1 ;; esac
case "$cmd" in
createcd)
  printf 'Compressing, 50.0%% complete... (ratio=40.0%%)\r' >&2
  case "$name" in *empty*) : > "$out"; exit 0 ;; esac
  { echo "CHD"; cat "$in"; } > "$out"
  printf 'Compression complete ... final ratio = 40.0%%\n' >&2
  ;;
extractcd)
  printf 'Extracting, 50.0%% complete...\r' >&2
  case "$name" in *empty*) : > "$out"; : > "$outbin"; exit 0 ;; esac
  bin=$(basename "$outbin")
  printf 'FILE "%s" BINARY\n  TRACK 01 MODE2/2352\n    INDEX 01 00:00:00\n' "$bin" > "$out"
  printf 'merged %s\n' "$name" > "$outbin"
  printf 'Extraction complete\n' >&2
  ;;
info)
  echo "chdman - MAME Compressed Hunks of Data (CHD) manager 0.262 (stub)"
  echo "Input file:   $in"
  echo "File Version: 5"
  case "$name" in
    *dvd*)
      echo "Logical size: 4,700,372,992 bytes"
      echo "CHD size:     2,147,483,648 bytes"
      echo "Ratio:        45.7%"
      echo "Metadata:     Tag='DVD '  Index=0   Length=1 bytes"
      ;;
    *)
      echo "Logical size: 734,003,200 bytes"
      echo "CHD size:     412,345,678 bytes"
      echo "Ratio:        56.2%"
      echo "Metadata:     Tag='CHT2'  Index=0   Length=90 bytes"
      echo "              TRACK:1 TYPE:MODE2_RAW SUBTYPE:NONE FRAMES:299840"
      ;;
  esac
  ;;
*)
  echo "unknown command $cmd" >&2
  exit 1
  ;;
esac
`

const xisoScript = `[ "$1" = "-r" ] || { echo "usage: xiso -r file" >&2; exit 2; }
iso="$2"
name=$(basename "$iso")
case "$name" in *hang*) exec sleep 30 ;; esac
case "$name" in *fail*) echo "failed to rewrite $name" >&2; exit 1 ;; esac
mv "$iso" "$iso.old"
case "$name" in
  *optim*) head -c 4 "$iso.old" > "$iso" ;;
  *empty*) : > "$iso" ;;
  *) cat "$iso.old" > "$iso" ;;
esac
echo "$name successfully rewritten"
`

const dolphinScript = `cmd="$1"; shift
in=""; out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift 2 ;;
    -o) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
name=$(basename "$in")
case "$cmd" in
header)
  case "$name" in
    *notgc*) echo "Error: unable to open disc image" >&2; exit 1 ;;
    *silent*) exit 0 ;;
  esac
  echo "Internal Name: STUB GAME"
  echo "Game ID: GSTB01"
  ;;
convert)
  case "$name" in
    *hang*) exec sleep 30 ;;
    *fail*) echo "Conversion failed" >&2; exit 1 ;;
    *critical*) echo "The input file is not a GC/Wii disc image" >&2; : > "$out"; exit 0 ;;
  esac
  printf 'Compressing,  50.0%% complete\n'
  case "$name" in *empty*) : > "$out" ;; *) cat "$in" > "$out" ;; esac
  ;;
*)
  echo "unknown command $cmd" >&2
  exit 1
  ;;
esac
`

const gensquashfsScript = `dir=""; out=""; comp=""
while [ $# -gt 0 ]; do
  case "$1" in
    --pack-dir) dir="$2"; shift 2 ;;
    --compressor) comp="$2"; shift 2 ;;
    --block-size|--num-jobs) shift 2 ;;
    *) out="$1"; shift ;;
  esac
done
name=$(basename "$dir")
case "$name" in *hang*) exec sleep 30 ;; esac
case "$name" in *fail*) echo "packing $name failed" >&2; exit 1 ;; esac
case "$name" in *empty*) : > "$out"; exit 0 ;; esac
{ echo "compressor=$comp"; ls -1 "$dir"; } > "$out"
`

const rdsquashfsScript = `root=""; in=""
while [ $# -gt 0 ]; do
  case "$1" in
    --unpack-path) shift 2 ;;
    --unpack-root) root="$2"; shift 2 ;;
    *) in="$1"; shift ;;
  esac
done
name=$(basename "$in")
case "$name" in *hang*) exec sleep 30 ;; esac
case "$name" in *fail*) echo "corrupt image $name" >&2; exit 1 ;; esac
case "$name" in *empty*) exit 0 ;; esac
mkdir -p "$root"
cp "$in" "$root/image.txt"
`

var stubScripts = map[tools.Name]string{
	tools.Archiver:         archiverScript,
	tools.DiscPatcher:      xisoScript,
	tools.ChdManager:       chdmanScript,
	tools.DiscTool:         dolphinScript,
	tools.SquashfsPacker:   gensquashfsScript,
	tools.SquashfsUnpacker: rdsquashfsScript,
}

// WriteTool writes an executable /bin/sh script with the given body.
func WriteTool(t testing.TB, path, body string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
	return path
}

// StubTools writes every fake converter into dir under its default binary
// name and returns the registry over them.
func StubTools(t testing.TB, dir string) *tools.Registry {
	t.Helper()
	for _, req := range tools.Requirements {
		WriteTool(t, filepath.Join(dir, req.Binary), stubScripts[req.Name])
	}
	return tools.New(dir, nil)
}

// ReplaceTool overwrites one stub in dir with a custom script body.
func ReplaceTool(t testing.TB, dir string, name tools.Name, body string) {
	t.Helper()
	for _, req := range tools.Requirements {
		if req.Name == name {
			WriteTool(t, filepath.Join(dir, req.Binary), body)
			return
		}
	}
	t.Fatalf("unknown tool %s", name)
}
