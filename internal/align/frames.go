package align

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FrameExt is the extension of extracted frame files.
const FrameExt = ".jpg"

// FrameIndex maps a capture timestamp in milliseconds to a frame reference.
type FrameIndex map[int64]string

// FrameName returns the conventional file name for a frame captured at ms.
func FrameName(ms int64) string {
	return strconv.FormatInt(ms, 10) + FrameExt
}

// ParseFrameName extracts the timestamp from a "{startMs}.jpg" name.
func ParseFrameName(name string) (int64, bool) {
	base := path.Base(filepath.ToSlash(name))
	if !strings.EqualFold(path.Ext(base), FrameExt) {
		return 0, false
	}
	ms, err := strconv.ParseInt(strings.TrimSuffix(base, path.Ext(base)), 10, 64)
	if err != nil || ms < 0 {
		return 0, false
	}
	return ms, true
}

// Resolve picks the frame with the largest timestamp not after startMs. When
// every frame is later, the nearest one wins, preferring the earlier
// timestamp on ties.
func (ix FrameIndex) Resolve(startMs int64) (string, bool) {
	if len(ix) == 0 {
		return "", false
	}
	var (
		floorTs   int64
		haveFloor bool
		nearTs    int64
		nearDist  int64 = -1
	)
	for ts := range ix {
		if ts <= startMs && (!haveFloor || ts > floorTs) {
			floorTs, haveFloor = ts, true
		}
		dist := ts - startMs
		if dist < 0 {
			dist = -dist
		}
		if nearDist < 0 || dist < nearDist || (dist == nearDist && ts < nearTs) {
			nearTs, nearDist = ts, dist
		}
	}
	if haveFloor {
		return ix[floorTs], true
	}
	return ix[nearTs], true
}

// Timestamps returns the index keys in ascending order.
func (ix FrameIndex) Timestamps() []int64 {
	out := make([]int64, 0, len(ix))
	for ts := range ix {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FrameResolver chooses a frame for a segment start. Available holds frames
// that were actually extracted and is authoritative; Fallback is consulted
// only when Available is empty.
type FrameResolver struct {
	Available FrameIndex
	Fallback  FrameIndex
}

// Resolve returns the chosen frame reference, or nil when neither index has
// any frame.
func (r FrameResolver) Resolve(startMs int64) *string {
	idx := r.Available
	if len(idx) == 0 {
		idx = r.Fallback
	}
	ref, ok := idx.Resolve(startMs)
	if !ok {
		return nil
	}
	return &ref
}

// LoadFrameDir indexes every "{startMs}.jpg" file in dir by its timestamp,
// using absolute paths. A missing directory yields an empty index.
func LoadFrameDir(dir string) (FrameIndex, error) {
	ix := FrameIndex{}
	if dir == "" {
		return ix, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ix, nil
		}
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve frame dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ms, ok := ParseFrameName(entry.Name())
		if !ok {
			continue
		}
		ix[ms] = filepath.Join(abs, entry.Name())
	}
	return ix, nil
}

// FrameIndexFromNames indexes blob names such as "{jobId}/{startMs}.jpg".
// Each reference is the name with prefix prepended.
func FrameIndexFromNames(names []string, prefix string) FrameIndex {
	ix := FrameIndex{}
	for _, name := range names {
		ms, ok := ParseFrameName(name)
		if !ok {
			continue
		}
		ix[ms] = prefix + name
	}
	return ix
}

// ShotFrameFallback maps each shot start to the conventional frame path
// frames/{jobId}/{startMs}.jpg.
func ShotFrameFallback(jobID string, shotStarts []int64) FrameIndex {
	ix := make(FrameIndex, len(shotStarts))
	for _, ms := range shotStarts {
		ix[ms] = path.Join("frames", jobID, FrameName(ms))
	}
	return ix
}
