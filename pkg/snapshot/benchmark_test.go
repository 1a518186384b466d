package snapshot

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/DataDog/zstd"

	"github.com/goopsie/pckFileTools/pkg/pck/pcktest"
)

func benchSnapshot(b *testing.B, n int) *Snapshot {
	files := make([]pcktest.File, n)
	for i := range files {
		files[i] = pcktest.File{Path: fmt.Sprintf("res://levels/level_%04d.tscn", i), Content: []byte{byte(i)}}
	}
	s, err := Capture(bytes.NewReader(pcktest.Build(files...)))
	if err != nil {
		b.Fatal(err)
	}
	return s
}

// BenchmarkEncode benchmarks snapshot encoding at different compression levels.
func BenchmarkEncode(b *testing.B) {
	s := benchSnapshot(b, 10000)

	for _, level := range []int{zstd.BestSpeed, zstd.DefaultCompression} {
		b.Run(fmt.Sprintf("Level_%d", level), func(b *testing.B) {
			b.SetBytes(int64(len(s.Table)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				out := pcktest.NewBuffer(nil)
				if err := Encode(out, s, WithCompressionLevel(level)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkDecode benchmarks snapshot decoding.
func BenchmarkDecode(b *testing.B) {
	s := benchSnapshot(b, 10000)
	out := pcktest.NewBuffer(nil)
	if err := Encode(out, s); err != nil {
		b.Fatal(err)
	}
	encoded := out.Bytes()

	b.SetBytes(int64(len(s.Table)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(bytes.NewReader(encoded)); err != nil {
			b.Fatal(err)
		}
	}
}
