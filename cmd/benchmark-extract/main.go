// Command benchmark-extract times mounting an image and extracting its whole
// tree to a temporary directory.
package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/jgarman/flopview/internal/catalog"
	"github.com/jgarman/flopview/internal/diskmanager"
	"github.com/jgarman/flopview/internal/formats/all"
	"github.com/jgarman/flopview/internal/formats/fat"
	"github.com/jgarman/flopview/internal/formats/fat32"
	"github.com/jgarman/flopview/internal/imagetree"
	"github.com/jgarman/flopview/internal/source"
)

func main() {
	var (
		imagePath  = pflag.String("image", "", "image to extract (default: build a synthetic one)")
		media      = pflag.String("media", "1.44M", "synthetic image media: 1.44M or a FAT32 media name")
		fileCount  = pflag.Int("files", 40, "synthetic image: number of files")
		fileSize   = pflag.Int("size", 16*1024, "synthetic image: bytes per file")
		iterations = pflag.Int("iterations", 3, "Number of iterations to run")
	)
	pflag.Parse()

	workDir, err := os.MkdirTemp("", "benchmark-extract")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(workDir)

	if *imagePath == "" {
		*imagePath = filepath.Join(workDir, "synthetic.img")
		if err := buildImage(*imagePath, *media, *fileCount, *fileSize); err != nil {
			fmt.Printf("Error: failed to build image: %v\n", err)
			os.Exit(1)
		}
	} else if _, err := os.Stat(*imagePath); os.IsNotExist(err) {
		fmt.Printf("Error: Image file not found: %s\n", *imagePath)
		os.Exit(1)
	}

	fmt.Printf("Benchmark Configuration:\n")
	fmt.Printf("  Image: %s\n", *imagePath)
	fmt.Printf("  Iterations: %d\n\n", *iterations)

	mgr := diskmanager.New(catalog.New(all.Library{}))

	var durations []time.Duration
	var totalBytes int64

	for i := 0; i < *iterations; i++ {
		fmt.Printf("Iteration %d/%d...\n", i+1, *iterations)

		dest := filepath.Join(workDir, fmt.Sprintf("out%d", i))
		start := time.Now()
		bytesWritten, err := extractImage(mgr, *imagePath, dest)
		duration := time.Since(start)

		if err != nil {
			fmt.Printf("  Error: %v\n", err)
			continue
		}

		durations = append(durations, duration)
		totalBytes = bytesWritten

		fmt.Printf("  Duration: %v\n", duration)
		fmt.Printf("  Throughput: %.2f MB/s\n", float64(bytesWritten)/duration.Seconds()/1024/1024)
	}

	if len(durations) == 0 {
		fmt.Println("\nAll iterations failed!")
		os.Exit(1)
	}

	fmt.Println("\n=== Results ===")
	fmt.Printf("Successful iterations: %d/%d\n", len(durations), *iterations)
	fmt.Printf("Bytes extracted per iteration: %d (%s)\n\n", totalBytes, humanize.IBytes(uint64(totalBytes)))

	var sum time.Duration
	minDuration := durations[0]
	maxDuration := durations[0]

	for _, d := range durations {
		sum += d
		if d < minDuration {
			minDuration = d
		}
		if d > maxDuration {
			maxDuration = d
		}
	}

	avgDuration := sum / time.Duration(len(durations))
	avgThroughput := float64(totalBytes) / avgDuration.Seconds() / 1024 / 1024

	fmt.Printf("Min duration:  %v (%.2f MB/s)\n", minDuration, float64(totalBytes)/minDuration.Seconds()/1024/1024)
	fmt.Printf("Max duration:  %v (%.2f MB/s)\n", maxDuration, float64(totalBytes)/maxDuration.Seconds()/1024/1024)
	fmt.Printf("Avg duration:  %v (%.2f MB/s)\n", avgDuration, avgThroughput)
}

// buildImage writes a synthetic image of count random files spread over a
// few directories.
func buildImage(path, media string, count, size int) error {
	files := make(map[string][]byte, count)
	for i := 0; i < count; i++ {
		data := make([]byte, size)
		rand.Read(data)
		files[fmt.Sprintf("DIR%d/FILE%04d.BIN", i%4, i)] = data
	}

	if media == "1.44M" {
		return fat.BuildFloppy(path, "BENCH", files)
	}
	for _, m := range fat32.DefaultMedia {
		if m.Name == media {
			return fat32.CreateImage(path, m.Size, "BENCH", files)
		}
	}
	return fmt.Errorf("unknown media %q", media)
}

// extractImage mounts the image with its default selection and extracts
// everything under dest
func extractImage(mgr *diskmanager.Manager, imagePath, dest string) (int64, error) {
	im, err := source.Open(imagePath)
	if err != nil {
		return 0, err
	}
	sel, err := mgr.Select(im.Reader(), im.Hint(), "", "")
	if err != nil {
		return 0, err
	}
	img, err := mgr.Mount(im.Reader(), sel.Format, sel.FileSystem)
	if err != nil {
		return 0, err
	}
	tree, err := imagetree.New(img)
	if err != nil {
		img.Close()
		return 0, err
	}
	defer tree.Close()

	report, err := tree.Extract(imagetree.Root(), dest, false)
	if err != nil {
		return 0, err
	}
	if !report.OK() {
		return report.Bytes(), fmt.Errorf("incomplete extraction: %d failures", len(report.Failures()))
	}
	return report.Bytes(), nil
}
