// Package progress draws progress bars for long operations when the
// context carries an output writer, and does nothing otherwise.
package progress

import (
	"context"
	"fmt"
	"io"
	"time"

	pb "github.com/schollz/progressbar/v3"
)

type pbVal struct {
	w io.Writer
}

type pbKey struct{}

func Open(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, pbKey{}, pbVal{w})
}

type Progress struct {
	bar    *pb.ProgressBar
	prefix string
}

func (t *Progress) Add(cnt int64) {
	if t.bar == nil {
		return
	}

	t.bar.Add64(cnt)
}

func (t *Progress) Tick() {
	t.Add(1)
}

// Write counts len(p) against the bar, for use with io.Copy.
func (t *Progress) Write(p []byte) (int, error) {
	t.Add(int64(len(p)))
	return len(p), nil
}

func (t *Progress) Close() {
	if t.bar == nil {
		return
	}

	t.bar.Close()
}

func (t *Progress) On(step string) {
	if t.bar == nil {
		return
	}

	t.bar.Describe(t.prefix + ": " + step)
}

func open(ctx context.Context, total int64, desc string, opts ...pb.Option) *Progress {
	h := ctx.Value(pbKey{})
	if h == nil {
		return &Progress{}
	}

	val := h.(pbVal)

	opts = append([]pb.Option{
		pb.OptionSetDescription(desc),
		pb.OptionSetWriter(val.w),
		pb.OptionSetWidth(20),
		pb.OptionThrottle(65 * time.Millisecond),
		pb.OptionSetTheme(
			pb.Theme{Saucer: "=", SaucerPadding: " ", BarStart: "[", BarEnd: "]"},
		),
		pb.OptionOnCompletion(func() {
			fmt.Fprint(val.w, "\n")
		}),
		pb.OptionSpinnerType(14),
		pb.OptionFullWidth(),
	}, opts...)

	bar := pb.NewOptions64(total, opts...)
	bar.RenderBlank()

	return &Progress{prefix: desc, bar: bar}
}

// Count tracks a number of items.
func Count(ctx context.Context, total int64, desc string) *Progress {
	return open(ctx, total, desc, pb.OptionShowCount(), pb.OptionShowIts())
}

// Bytes tracks a byte total.
func Bytes(ctx context.Context, total int64, desc string) *Progress {
	return open(ctx, total, desc, pb.OptionShowBytes(true))
}
